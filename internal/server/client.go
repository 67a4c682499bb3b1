package server

// Paths served by the dev server next to the site itself.
const (
	wsPath     = "/__frontbuild/ws"
	clientPath = "/__frontbuild/client.js"
)

// clientSnippet is injected into every HTML response.
const clientSnippet = `<script src="` + clientPath + `" defer></script>`

// clientScript connects to the hub, reloads the page or swaps stylesheets,
// and reconnects with backoff after the server restarts.
const clientScript = `(function () {
  "use strict";
  var delay = 250;
  var wasConnected = false;

  function swapStylesheets(target) {
    var links = document.querySelectorAll('link[rel="stylesheet"]');
    var swapped = 0;
    for (var i = 0; i < links.length; i++) {
      var link = links[i];
      var url = new URL(link.href, location.href);
      if (target && !url.pathname.endsWith(target)) {
        continue;
      }
      url.searchParams.set("frontbuild", Date.now().toString());
      link.href = url.toString();
      swapped++;
    }
    if (swapped === 0) {
      location.reload();
    }
  }

  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "` + wsPath + `");

    ws.onopen = function () {
      if (wasConnected) {
        location.reload();
        return;
      }
      wasConnected = true;
      delay = 250;
    };

    ws.onmessage = function (event) {
      var msg;
      try {
        msg = JSON.parse(event.data);
      } catch (e) {
        return;
      }
      if (msg.type === "css") {
        swapStylesheets(msg.target);
      } else if (msg.type === "reload") {
        location.reload();
      }
    };

    ws.onclose = function () {
      setTimeout(connect, delay);
      delay = Math.min(delay * 2, 5000);
    };
  }

  connect();
})();
`
