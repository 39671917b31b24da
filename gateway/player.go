// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"bytes"
	"html/template"
)

const (
	nanoPlayerScript = "https://demo.nanocosmos.de/nanoplayer/api/release/nanoplayer.4.min.js"
	h5liveSocket     = "wss://bintu-play.nanocosmos.de/h5live/authstream/stream.mp4"
	h5liveHLS        = "https://bintu-play.nanocosmos.de/h5live/authstream/playlist.m3u8"
)

type h5liveParams struct {
	URL     string `json:"url"`
	Stream  string `json:"stream"`
	CID     string `json:"cid"`
	PID     string `json:"pid"`
	Flags   string `json:"flags"`
	Token   string `json:"token"`
	Expires string `json:"expires"`
	Options string `json:"options"`
}

type playerSetup struct {
	Source struct {
		H5Live struct {
			Server struct {
				WebSocket string `json:"websocket"`
				HLS       string `json:"hls"`
			} `json:"server"`
			Params h5liveParams `json:"params"`
		} `json:"h5live"`
	} `json:"source"`
	Playback map[string]bool        `json:"playback"`
	Style    map[string]interface{} `json:"style"`
}

func newPlayerSetup(p PlayerConfig, stream string) playerSetup {
	var setup playerSetup
	setup.Source.H5Live.Server.WebSocket = h5liveSocket
	setup.Source.H5Live.Server.HLS = h5liveHLS
	setup.Source.H5Live.Params = h5liveParams{
		URL:     p.URL,
		Stream:  stream,
		CID:     p.CID,
		PID:     p.PID,
		Flags:   p.Flags,
		Token:   p.Token,
		Expires: p.Expires,
		Options: p.Options,
	}
	setup.Playback = map[string]bool{"autoplay": true, "muted": true, "keepMuted": false}
	setup.Style = map[string]interface{}{"width": "100%", "height": "100%", "aspectratio": "16:9", "controls": true}
	return setup
}

var playerTemplate = template.Must(template.New("royal-player").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Royal Casino Live</title>
<script src="{{.Script}}"></script>
<style>
body,html{margin:0;padding:0;height:100%;width:100%;overflow:hidden;background-color:#000;font-family:sans-serif;color:#fff}
#player-wrapper{width:100%;height:100%;position:relative}
#nanoplayer{width:100%;height:100%}
.badge{position:absolute;top:10px;left:10px;z-index:10;background:rgba(0,0,0,.5);padding:4px 10px;border-radius:6px;font-size:11px;font-weight:600;display:flex;align-items:center;gap:6px}
.dot{width:6px;height:6px;border-radius:50%;background:#666}
.dot.live{background:#00ff00;box-shadow:0 0 6px #00ff00}
.dot.error{background:#ff4757}
.loader{position:absolute;top:0;left:0;width:100%;height:100%;background:#000;display:flex;flex-direction:column;align-items:center;justify-content:center;z-index:5;transition:opacity .5s ease-out}
.spinner{width:30px;height:30px;border:2px solid rgba(243,186,47,.1);border-top:2px solid #f3ba2f;border-radius:50%;animation:spin .8s linear infinite;margin-bottom:12px}
@keyframes spin{0%{transform:rotate(0deg)}100%{transform:rotate(360deg)}}
.retry-hint{position:absolute;bottom:10px;right:10px;z-index:10;font-size:10px;color:rgba(255,255,255,.3);cursor:pointer}
</style>
</head>
<body>
<div id="player-wrapper">
<div class="badge"><div id="status-dot" class="dot"></div><span id="status-text">CONNECTING</span></div>
<div class="loader" id="loader"><div class="spinner"></div><div style="font-size:12px;color:#888">LOADING STREAM...</div></div>
<div id="nanoplayer"></div>
<div class="retry-hint" onclick="reconnect()">RECONNECT</div>
</div>
<script>
var player;
var retryCount = 0;
var maxRetries = 10;
var bufferTimeout;
var playerConfig = {{.Setup}};

function init() {
  player = new NanoPlayer("nanoplayer");
  player.setup(playerConfig).then(function () {
    hideLoader();
  }, function () {
    updateUI("error", "SETUP FAILED");
    handleFailure();
  });
  player.on("Status", function (e) {
    var status = e.data.status;
    if (status === "playing") {
      updateUI("live", "LIVE");
      retryCount = 0;
      clearTimeout(bufferTimeout);
    } else if (status === "buffering") {
      updateUI("default", "BUFFERING...");
      monitorBuffer();
    }
  });
  player.on("Error", function () {
    updateUI("error", "RECONNECTING...");
    handleFailure();
  });
}

function monitorBuffer() {
  clearTimeout(bufferTimeout);
  bufferTimeout = setTimeout(reconnect, 10000);
}

function handleFailure() {
  if (retryCount < maxRetries) {
    retryCount++;
    setTimeout(reconnect, Math.min(2000 * retryCount, 10000));
  }
}

function reconnect() {
  if (player) {
    player.destroy();
    init();
  }
}

function updateUI(type, text) {
  var dot = document.getElementById("status-dot");
  dot.className = "dot";
  if (type === "live") dot.classList.add("live");
  if (type === "error") dot.classList.add("error");
  document.getElementById("status-text").innerText = text;
}

function hideLoader() {
  var loader = document.getElementById("loader");
  loader.style.opacity = "0";
  setTimeout(function () { loader.style.display = "none"; }, 500);
}

document.addEventListener("DOMContentLoaded", init);
</script>
</body>
</html>
`))

// renderPlayer builds the live video page for one stream.
func renderPlayer(p PlayerConfig, stream string) ([]byte, error) {
	var buf bytes.Buffer
	err := playerTemplate.Execute(&buf, struct {
		Script string
		Setup  playerSetup
	}{Script: nanoPlayerScript, Setup: newPlayerSetup(p, stream)})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
