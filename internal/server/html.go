package server

const indexHTML = `
<!DOCTYPE html>
<html>
<head>
    <title>Fire &amp; Smoke Detection Monitor</title>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { margin: 0; font-family: -apple-system, sans-serif; background: #111; color: #eee; }
        .app { max-width: 1100px; margin: 0 auto; padding: 16px; }
        .header { display: flex; justify-content: space-between; align-items: center; }
        .grid { display: grid; grid-template-columns: 2fr 1fr; gap: 16px; margin-top: 16px; }
        .panel { background: #1c1c1c; border-radius: 8px; padding: 14px; }
        .panel h2 { margin: 0 0 10px; font-size: 15px; color: #aaa; }
        .counts { display: flex; gap: 24px; font-size: 28px; }
        .counts .fire { color: #ff5544; }
        .counts .smoke { color: #ffa544; }
        #events { max-height: 340px; overflow-y: auto; font-size: 13px; font-family: monospace; }
        #events div { padding: 3px 0; border-bottom: 1px solid #2a2a2a; }
        #stream { width: 100%; height: auto; display: block; background: #000; border-radius: 4px; }
        .badge { padding: 3px 8px; border-radius: 10px; font-size: 12px; background: #333; }
        .badge.live { background: #1d5c2a; }
    </style>
</head>
<body>
    <div class="app">
        <div class="header">
            <h1>🔥 Fire &amp; Smoke Detection Monitor</h1>
            <span class="badge" id="ws-badge">connecting…</span>
        </div>
        <div class="grid">
            <div class="panel">
                <h2>Live Feed</h2>
                <img id="stream" src="/video_feed" alt="camera feed">
            </div>
            <div class="panel">
                <h2>Today</h2>
                <div class="counts">
                    <span class="fire" id="fire-count">–</span>
                    <span class="smoke" id="smoke-count">–</span>
                </div>
            </div>
            <div class="panel" style="grid-column: span 2;">
                <h2>Detections</h2>
                <div id="events"></div>
            </div>
        </div>
    </div>
    <script>
        const badge = document.getElementById('ws-badge');
        const events = document.getElementById('events');

        const proto = location.protocol === 'https:' ? 'wss:' : 'ws:';
        const ws = new WebSocket(proto + '//' + location.host + '/ws/detections');
        ws.onopen = () => { badge.textContent = 'live'; badge.classList.add('live'); };
        ws.onclose = () => { badge.textContent = 'disconnected'; badge.classList.remove('live'); };
        ws.onmessage = (msg) => {
            const ev = JSON.parse(msg.data);
            const row = document.createElement('div');
            row.textContent = ev.timestamp + '  ' + ev.object_type +
                '  conf=' + ev.confidence.toFixed(2) + '  src=' + ev.ai_server_id;
            events.prepend(row);
            while (events.childNodes.length > 200) events.removeChild(events.lastChild);
        };

        async function refreshCounts() {
            try {
                const res = await fetch('/get_today_counts');
                const body = await res.json();
                if (body.status === 'success') {
                    document.getElementById('fire-count').textContent = '🔥 ' + body.data.fire_count;
                    document.getElementById('smoke-count').textContent = '💨 ' + body.data.smoke_count;
                }
            } catch (e) { /* store may be down; keep the last numbers */ }
        }
        refreshCounts();
        setInterval(refreshCounts, 5000);
    </script>
</body>
</html>
`
