package integration

import (
	"time"

	"mailsink/internal/ingest"
	"mailsink/internal/logger"
)

func createTestLogger() logger.Logger {
	return logger.NopLogger()
}

func createTestMessage(id, recipient string) *ingest.MessageRecord {
	ts := int64(1609459200)
	date := time.Unix(ts, 0).UTC()
	return &ingest.MessageRecord{
		ID:         id,
		Recipient:  recipient,
		Sender:     "bob@example.com",
		Subject:    "integration",
		Timestamp:  &ts,
		Date:       &date,
		ReceivedAt: time.Now().UTC(),
	}
}

func createTestAttachment(messageID, objectName, filename string) *ingest.AttachmentRecord {
	return &ingest.AttachmentRecord{
		ID:          messageID + "/" + objectName,
		MessageID:   messageID,
		Bucket:      "inbound-mail",
		Name:        objectName,
		Filename:    filename,
		ContentType: "text/plain",
		Size:        14,
		MD5:         "9a0364b9e99bb480dd25e1f0284c8555",
	}
}
