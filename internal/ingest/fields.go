package ingest

import (
	"strconv"
	"time"

	"mailsink/pkg/errors"
)

// ProjectFields converts raw decoded form fields into a MessageRecord.
// Only allow-listed names are retained; unknown fields are dropped without
// error. The caller fills in identity and ReceivedAt.
func ProjectFields(fields map[string]string) (*MessageRecord, error) {
	rec := &MessageRecord{}

	for name, value := range fields {
		switch name {
		case FieldRecipient:
			rec.Recipient = value
		case FieldSender:
			rec.Sender = value
		case FieldFrom:
			rec.From = value
		case FieldSubject:
			rec.Subject = value
		case FieldBodyPlain:
			rec.BodyPlain = value
		case FieldStrippedText:
			rec.StrippedText = value
		case FieldStrippedSignature:
			rec.StrippedSignature = value
		case FieldBodyHTML:
			rec.BodyHTML = value
		case FieldStrippedHTML:
			rec.StrippedHTML = value
		case FieldToken:
			rec.Token = value
		case FieldSignature:
			rec.Signature = value
		case FieldMessageHeaders:
			rec.MessageHeaders = value
		case FieldContentIDMap:
			rec.ContentIDMap = value
		case FieldTimestamp:
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, malformedField(FieldTimestamp, value, err)
			}
			date := time.Unix(ts, 0).UTC()
			rec.Timestamp = &ts
			rec.Date = &date
		case FieldAttachmentCount:
			count, err := strconv.Atoi(value)
			if err != nil {
				return nil, malformedField(FieldAttachmentCount, value, err)
			}
			rec.AttachmentCount = &count
		}
	}

	return rec, nil
}

func malformedField(field, value string, cause error) error {
	return errors.ErrMalformedField.
		WithMessage("field '" + field + "' is not numeric").
		WithDetails(map[string]interface{}{"field": field, "value": value}).
		WithCause(cause)
}
