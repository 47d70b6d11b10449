package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultMongoDBName = "mailsink"

	MessageCollection    = "messages"
	AttachmentCollection = "attachments"
)

const (
	DefaultIngestTopic = "mail_ingested"
)

const (
	StatsKeyPrefix  = "ingest:"
	DefaultStatsTTL = 30 * 24 * time.Hour
)

const (
	ShutdownTimeout = 5 * time.Second
	ConnectTimeout  = 30 * time.Second
)

const (
	SpoolFilePattern = "mailsink-attachment-*"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)
