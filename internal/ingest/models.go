package ingest

import "time"

// Parsed-message field names as delivered by the mail provider's webhook.
const (
	FieldRecipient         = "recipient"
	FieldSender            = "sender"
	FieldFrom              = "from"
	FieldSubject           = "subject"
	FieldBodyPlain         = "body-plain"
	FieldStrippedText      = "stripped-text"
	FieldStrippedSignature = "stripped-signature"
	FieldBodyHTML          = "body-html"
	FieldStrippedHTML      = "stripped-html"
	FieldAttachmentCount   = "attachment-count"
	FieldTimestamp         = "timestamp"
	FieldToken             = "token"
	FieldSignature         = "signature"
	FieldMessageHeaders    = "message-headers"
	FieldContentIDMap      = "content-id-map"
)

// MessageFields is the allow-list of submitted fields that are projected
// into a MessageRecord. Everything else is dropped silently.
var MessageFields = []string{
	FieldRecipient, FieldSender, FieldFrom, FieldSubject, FieldBodyPlain,
	FieldStrippedText, FieldStrippedSignature, FieldBodyHTML, FieldStrippedHTML,
	FieldAttachmentCount, FieldTimestamp, FieldToken, FieldSignature,
	FieldMessageHeaders, FieldContentIDMap,
}

// NonIndexedFields are stored as opaque payload: EnsureIndexes never builds
// an index over them.
var NonIndexedFields = []string{
	FieldStrippedText,
	FieldStrippedHTML,
	FieldStrippedSignature,
	FieldBodyHTML,
	FieldBodyPlain,
	FieldMessageHeaders,
	FieldContentIDMap,
}

// MessageRecord is the persisted projection of one inbound email. All
// submitted fields are optional; absent fields are omitted from the stored
// document. Written once per ingestion, never mutated.
type MessageRecord struct {
	ID                string     `bson:"_id" json:"id"`
	Recipient         string     `bson:"recipient,omitempty" json:"recipient,omitempty"`
	Sender            string     `bson:"sender,omitempty" json:"sender,omitempty"`
	From              string     `bson:"from,omitempty" json:"from,omitempty"`
	Subject           string     `bson:"subject,omitempty" json:"subject,omitempty"`
	BodyPlain         string     `bson:"body-plain,omitempty" json:"bodyPlain,omitempty"`
	StrippedText      string     `bson:"stripped-text,omitempty" json:"strippedText,omitempty"`
	StrippedSignature string     `bson:"stripped-signature,omitempty" json:"strippedSignature,omitempty"`
	BodyHTML          string     `bson:"body-html,omitempty" json:"bodyHtml,omitempty"`
	StrippedHTML      string     `bson:"stripped-html,omitempty" json:"strippedHtml,omitempty"`
	AttachmentCount   *int       `bson:"attachment-count,omitempty" json:"attachmentCount,omitempty"`
	Timestamp         *int64     `bson:"timestamp,omitempty" json:"timestamp,omitempty"`
	Date              *time.Time `bson:"date,omitempty" json:"date,omitempty"`
	Token             string     `bson:"token,omitempty" json:"token,omitempty"`
	Signature         string     `bson:"signature,omitempty" json:"signature,omitempty"`
	MessageHeaders    string     `bson:"message-headers,omitempty" json:"messageHeaders,omitempty"`
	ContentIDMap      string     `bson:"content-id-map,omitempty" json:"contentIdMap,omitempty"`
	ReceivedAt        time.Time  `bson:"received-at" json:"receivedAt"`
}

// AttachmentRecord links one uploaded attachment back to its message. Its
// identity is subordinate to the owning message: "<messageID>/<objectName>".
type AttachmentRecord struct {
	ID          string `bson:"_id" json:"id"`
	MessageID   string `bson:"message-id" json:"messageId"`
	Bucket      string `bson:"bucket" json:"bucket"`
	Name        string `bson:"name" json:"name"`
	Filename    string `bson:"filename" json:"filename"`
	ContentType string `bson:"content-type,omitempty" json:"contentType,omitempty"`
	Size        int64  `bson:"size" json:"size"`
	MD5         string `bson:"md5,omitempty" json:"md5,omitempty"`
}

// DecodedRequest is the form decoder's output: scalar fields plus file
// parts already spooled to local temporary files.
type DecodedRequest struct {
	Fields map[string]string
	Files  []*DecodedFile
}

// DecodedFile describes one spooled file part.
type DecodedFile struct {
	// Name is the form field the part arrived under.
	Name        string
	Filename    string
	Encoding    string
	ContentType string
	TempPath    string
}

// ObjectPrefix is the shared destination prefix for all attachments of one
// ingestion.
type ObjectPrefix struct {
	Recipient string
	MessageID string
}

func (p ObjectPrefix) Path() string {
	return p.Recipient + "/" + p.MessageID
}

// AttachmentResult reports both outcomes of one attachment pipeline:
// whether the blob was uploaded, and independently whether its metadata
// record was indexed. Only the upload outcome affects the ingestion result.
type AttachmentResult struct {
	ObjectName string
	Uploaded   bool
	Indexed    bool
	IndexErr   error
}

// IngestReceipt is returned to the webhook caller on success.
type IngestReceipt struct {
	MessageID           string `json:"messageId"`
	AttachmentsUploaded int    `json:"attachmentsUploaded"`
	AttachmentsIndexed  int    `json:"attachmentsIndexed"`
}
