package server

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Forumchat Gateway Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #events {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
            font-family: monospace;
        }
        input[type="text"], input[type="number"] { padding: 5px; margin-right: 10px; }
        #token { width: 360px; }
        #content { width: 300px; }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
        button:disabled { background-color: #999; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>Forumchat Gateway Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="token" placeholder="JWT access token">
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>

    <div style="margin-top: 10px">
        <input type="number" id="thread" value="1" min="1">
        <button class="live" onclick="send('threads', 'join_thread', threadRef())" disabled>Join</button>
        <button class="live" onclick="send('threads', 'leave_thread', threadRef())" disabled>Leave</button>
        <button class="live" onclick="send('messaging', 'typing', threadRef())" disabled>Typing</button>
        <button class="live" onclick="send('messaging', 'stop_typing', threadRef())" disabled>Stop typing</button>
    </div>

    <div style="margin-top: 10px">
        <input type="text" id="content" placeholder="Message content...">
        <button class="live" onclick="createMessage()" disabled>Send</button>
    </div>

    <div id="events"></div>

    <script>
        let ws = null;
        const eventsDiv = document.getElementById('events');
        const statusDiv = document.getElementById('status');
        const connectButton = document.getElementById('connectButton');

        function addLine(text, color) {
            const line = document.createElement('div');
            line.style.margin = '3px 0';
            line.style.color = color || 'gray';
            line.textContent = text;
            eventsDiv.appendChild(line);
            eventsDiv.scrollTop = eventsDiv.scrollHeight;
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
            document.querySelectorAll('button.live').forEach(b => b.disabled = !connected);
        }

        function threadRef() {
            return { thread_id: parseInt(document.getElementById('thread').value, 10) };
        }

        function send(module, type, payload) {
            if (!ws || ws.readyState !== WebSocket.OPEN) {
                return;
            }
            const text = JSON.stringify({ module: module, type: type, payload: payload });
            ws.send(text);
            addLine('> ' + text, 'blue');
        }

        function createMessage() {
            const input = document.getElementById('content');
            const content = input.value.trim();
            if (!content) {
                return;
            }
            send('messaging', 'create_message', { content: content, directory_id: threadRef().thread_id });
            input.value = '';
        }

        function connect() {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            const token = encodeURIComponent(document.getElementById('token').value.trim());
            ws = new WebSocket(scheme + location.host + '/api/ws?token=' + token);

            ws.onopen = function() {
                addLine('Connected to gateway');
                updateStatus(true);
            };

            ws.onmessage = function(event) {
                let color = 'green';
                try {
                    if (JSON.parse(event.data).module === 'system') {
                        color = 'red';
                    }
                } catch (e) {}
                addLine('< ' + event.data, color);
            };

            ws.onclose = function(event) {
                addLine('Connection closed (' + event.code + ')');
                updateStatus(false);
                ws = null;
            };

            ws.onerror = function() {
                addLine('Connection error', 'red');
            };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }

        document.getElementById('content').addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                createMessage();
            }
        });
    </script>
</body>
</html>`
