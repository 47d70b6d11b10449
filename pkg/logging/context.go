package logging

import (
	"context"
)

const (
	RequestIDKey = "request_id"
	MessageIDKey = "message_id"
	RecipientKey = "recipient"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func WithMessageID(ctx context.Context, messageID string) context.Context {
	return context.WithValue(ctx, MessageIDKey, messageID)
}

func WithRecipient(ctx context.Context, recipient string) context.Context {
	return context.WithValue(ctx, RecipientKey, recipient)
}

func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

func GetMessageID(ctx context.Context) string {
	if messageID, ok := ctx.Value(MessageIDKey).(string); ok {
		return messageID
	}
	return ""
}

func GetRecipient(ctx context.Context) string {
	if recipient, ok := ctx.Value(RecipientKey).(string); ok {
		return recipient
	}
	return ""
}

func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 6)

	if requestID := GetRequestID(ctx); requestID != "" {
		fields = append(fields, "request_id", requestID)
	}

	if messageID := GetMessageID(ctx); messageID != "" {
		fields = append(fields, "message_id", messageID)
	}

	if recipient := GetRecipient(ctx); recipient != "" {
		fields = append(fields, "recipient", recipient)
	}

	return fields
}
