package constants

import "time"

// Wire message types
const (
	MessageJoin       = "join"
	MessageJoined     = "joined"
	MessageLeave      = "leave"
	MessageLeft       = "left"
	MessagePeerJoined = "peer-joined"
	MessageSignal     = "signal"
	MessageChat       = "chat"
	MessageWhiteboard = "whiteboard"
	MessagePingTime   = "ping-time"
	MessagePongTime   = "pong-time"
	MessageError      = "error"
)

// Signal kinds carried inside a "signal" message
const (
	SignalOffer        = "offer"
	SignalAnswer       = "answer"
	SignalICECandidate = "ice-candidate"
)

// Whiteboard event types
const (
	BoardStroke = "stroke"
	BoardUndo   = "undo"
	BoardRedo   = "redo"
	BoardClear  = "clear"
)

// WebSocket subprotocols
const (
	SubprotocolJSON    = "lingmeet.json"
	SubprotocolMsgpack = "lingmeet.msgpack"
)

const (
	DefaultAddr               = ":7072"
	DefaultSendQueue          = 256
	DefaultMaxMessageSize     = 64 * 1024
	DefaultNegotiationTimeout = 30 * time.Second
	DefaultClockSyncInterval  = 5 * time.Second
	DefaultHistoryRetention   = 30
	DefaultPruneSchedule      = "@every 1h"
	ChatIDLength              = 12
)

// env keys
const (
	ENV_MODE                   = "MODE"
	ENV_ADDR                   = "ADDR"
	ENV_SERVER_NAME            = "SERVER_NAME"
	ENV_DB_DRIVER              = "DB_DRIVER"
	ENV_DSN                    = "DSN"
	ENV_ALLOWED_ORIGIN         = "ALLOWED_ORIGIN"
	ENV_WS_READ_BUFFER         = "WS_READ_BUFFER"
	ENV_WS_WRITE_BUFFER        = "WS_WRITE_BUFFER"
	ENV_WS_SEND_QUEUE          = "WS_SEND_QUEUE"
	ENV_WS_MAX_MESSAGE         = "WS_MAX_MESSAGE"
	ENV_NEGOTIATION_TIMEOUT    = "NEGOTIATION_TIMEOUT"
	ENV_CLOCK_SYNC_INTERVAL    = "CLOCK_SYNC_INTERVAL"
	ENV_HISTORY_RETENTION_DAYS = "HISTORY_RETENTION_DAYS"
	ENV_HISTORY_PRUNE_SCHEDULE = "HISTORY_PRUNE_SCHEDULE"
	ENV_STUN_SERVERS           = "STUN_SERVERS"
	ENV_SERVER_URL             = "SERVER_URL"
)
