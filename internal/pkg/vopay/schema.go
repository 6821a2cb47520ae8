package vopay

import (
	"encoding/json"
	"strings"
	"unicode"
)

// FieldKind is the JSON primitive a payload field must carry. VoPay sends
// amounts as decimal strings; only count-style fields are numbers.
type FieldKind int

const (
	KindString FieldKind = iota
	KindNumber
)

// Field describes one payload field. MetaKey overrides the snake_case
// metadata key derived from Name when the default derivation is wrong
// (acronym-heavy names like ELinxTransactionID).
type Field struct {
	Name    string
	Kind    FieldKind
	MetaKey string
}

// ValidationKeyField carries the webhook signature in every event type.
const ValidationKeyField = "ValidationKey"

// StatusUpdated is the event status assigned to event types that carry no
// Status field of their own (balances and limits).
const StatusUpdated = "updated"

const (
	ObjectTypeBankAccount  = "bank_account"
	ObjectTypeVerification = "verification"

	StatusVerified = "verified"
)

// Schema is the static description of one VoPay event type. The dispatcher
// is generic over schemas: adding a webhook means adding an entry here, not
// a handler.
type Schema struct {
	EventType       string // recorded on raw events, e.g. "account_verification"
	Path            string // route suffix under /webhooks/vopay, "" for the root
	Endpoint        string // human-readable label returned by the liveness probe
	ObjectType      string
	ExternalIDField string
	StatusField     string // empty when the event type has no status
	Required        []Field
	Optional        []Field
}

var schemas = []Schema{
	{
		EventType:       "transaction",
		Path:            "",
		Endpoint:        "VoPay Webhook Receiver",
		ObjectType:      "transaction",
		ExternalIDField: "TransactionID",
		StatusField:     "Status",
		Required: []Field{
			{Name: "TransactionID"},
			{Name: "TransactionType"},
			{Name: "TransactionAmount"},
			{Name: "Status"},
			{Name: ValidationKeyField},
		},
		Optional: []Field{
			{Name: "FullName"},
			{Name: "Currency"},
			{Name: "FailureReason"},
			{Name: "UpdatedAt"},
			{Name: "Environment"},
		},
	},
	{
		EventType:       "elinx",
		Path:            "/elinx",
		Endpoint:        "VoPay eLinx Status Webhook",
		ObjectType:      "elinx",
		ExternalIDField: "TransactionID",
		StatusField:     "Status",
		Required: []Field{
			{Name: "TransactionID"},
			{Name: "ELinxTransactionID", MetaKey: "elinx_transaction_id"},
			{Name: "Status"},
			{Name: ValidationKeyField},
		},
		Optional: []Field{
			{Name: "AccountToken"},
			{Name: "InstitutionName"},
			{Name: "AccountNumber"},
			{Name: "TransitNumber"},
			{Name: "UpdatedAt"},
			{Name: "Environment"},
		},
	},
	{
		EventType:       "account_status",
		Path:            "/account-status",
		Endpoint:        "VoPay Account Status Webhook",
		ObjectType:      "account",
		ExternalIDField: "AccountID",
		StatusField:     "Status",
		Required: []Field{
			{Name: "AccountID"},
			{Name: "Status"},
			{Name: ValidationKeyField},
		},
		Optional: []Field{
			{Name: "AccountType"},
			{Name: "Environment"},
		},
	},
	{
		EventType:       "batch",
		Path:            "/batch",
		Endpoint:        "VoPay Batch Requests Webhook",
		ObjectType:      "batch",
		ExternalIDField: "BatchID",
		StatusField:     "Status",
		Required: []Field{
			{Name: "BatchID"},
			{Name: "Status"},
			{Name: "TotalTransactions", Kind: KindNumber},
			{Name: ValidationKeyField},
		},
		Optional: []Field{
			{Name: "ProcessedCount", Kind: KindNumber},
			{Name: "Environment"},
		},
	},
	{
		EventType:       "bank_account",
		Path:            "/bank-account",
		Endpoint:        "VoPay Bank Account Creation Webhook",
		ObjectType:      ObjectTypeBankAccount,
		ExternalIDField: "AccountToken",
		StatusField:     "Status",
		Required: []Field{
			{Name: "AccountToken"},
			{Name: "InstitutionNumber"},
			{Name: "TransitNumber"},
			{Name: "AccountNumber"},
			{Name: "InstitutionName"},
			{Name: "Status"},
			{Name: ValidationKeyField},
		},
		Optional: []Field{
			{Name: "CreatedAt"},
			{Name: "Environment"},
		},
	},
	{
		EventType:       "batch_detail",
		Path:            "/batch-detail",
		Endpoint:        "VoPay Batch Detail Webhook",
		ObjectType:      "batch_detail",
		ExternalIDField: "BatchDetailID",
		StatusField:     "Status",
		Required: []Field{
			{Name: "BatchDetailID"},
			{Name: "BatchID"},
			{Name: "Status"},
			{Name: ValidationKeyField},
		},
		Optional: []Field{
			{Name: "TransactionID"},
			{Name: "Environment"},
		},
	},
	{
		EventType:       "scheduled_transaction",
		Path:            "/scheduled",
		Endpoint:        "VoPay Scheduled Transaction Webhook",
		ObjectType:      "scheduled_transaction",
		ExternalIDField: "ScheduleID",
		StatusField:     "Status",
		Required: []Field{
			{Name: "ScheduleID"},
			{Name: "Status"},
			{Name: "NextRunDate"},
			{Name: ValidationKeyField},
		},
		Optional: []Field{
			{Name: "Frequency"},
			{Name: "Environment"},
		},
	},
	{
		EventType:       "account_verification",
		Path:            "/account-verification",
		Endpoint:        "VoPay Account Verification Webhook",
		ObjectType:      ObjectTypeVerification,
		ExternalIDField: "VerificationID",
		StatusField:     "Status",
		Required: []Field{
			{Name: "VerificationID"},
			{Name: "AccountToken"},
			{Name: "Status"},
			{Name: ValidationKeyField},
		},
		Optional: []Field{
			{Name: "VerificationType"},
			{Name: "AttemptCount", Kind: KindNumber},
			{Name: "VerifiedAt"},
			{Name: "FailureReason"},
			{Name: "Environment"},
		},
	},
	{
		EventType:       "transaction_group",
		Path:            "/transaction-group",
		Endpoint:        "VoPay Transaction Group Webhook",
		ObjectType:      "transaction_group",
		ExternalIDField: "GroupID",
		StatusField:     "Status",
		Required: []Field{
			{Name: "GroupID"},
			{Name: "Status"},
			{Name: "TransactionCount", Kind: KindNumber},
			{Name: ValidationKeyField},
		},
		Optional: []Field{
			{Name: "TotalAmount"},
			{Name: "Environment"},
		},
	},
	{
		EventType:       "account_balance",
		Path:            "/account-balance",
		Endpoint:        "VoPay Account Balance Webhook",
		ObjectType:      "account_balance",
		ExternalIDField: "AccountID",
		Required: []Field{
			{Name: "AccountID"},
			{Name: "Balance"},
			{Name: "Available"},
			{Name: ValidationKeyField},
		},
		Optional: []Field{
			{Name: "Currency"},
			{Name: "AsOfDate"},
			{Name: "Environment"},
		},
	},
	{
		EventType:       "client_account_balance",
		Path:            "/client-account-balance",
		Endpoint:        "VoPay Client Account Balance Webhook",
		ObjectType:      "client_account_balance",
		ExternalIDField: "ClientAccountID",
		Required: []Field{
			{Name: "ClientAccountID"},
			{Name: "Balance"},
			{Name: ValidationKeyField},
		},
		Optional: []Field{
			{Name: "Currency"},
			{Name: "LastUpdated"},
			{Name: "Environment"},
		},
	},
	{
		EventType:       "payment_received",
		Path:            "/payment-received",
		Endpoint:        "VoPay Payment Received Webhook",
		ObjectType:      "payment",
		ExternalIDField: "PaymentID",
		StatusField:     "Status",
		Required: []Field{
			{Name: "PaymentID"},
			{Name: "Amount"},
			{Name: "Status"},
			{Name: ValidationKeyField},
		},
		Optional: []Field{
			{Name: "PaymentMethod"},
			{Name: "ReceivedAt"},
			{Name: "Environment"},
		},
	},
	{
		EventType:       "account_limit",
		Path:            "/account-limit",
		Endpoint:        "VoPay Account Limit Webhook",
		ObjectType:      "account_limit",
		ExternalIDField: "AccountID",
		Required: []Field{
			{Name: "AccountID"},
			{Name: "DailyLimit"},
			{Name: "RemainingLimit"},
			{Name: ValidationKeyField},
		},
		Optional: []Field{
			{Name: "UsedAmount"},
			{Name: "Environment"},
		},
	},
	{
		EventType:       "virtual_account",
		Path:            "/virtual-accounts",
		Endpoint:        "VoPay Virtual Accounts Webhook",
		ObjectType:      "virtual_account",
		ExternalIDField: "VirtualAccountID",
		StatusField:     "Status",
		Required: []Field{
			{Name: "VirtualAccountID"},
			{Name: "AccountNumber"},
			{Name: "Status"},
			{Name: ValidationKeyField},
		},
		Optional: []Field{
			{Name: "CreatedAt"},
			{Name: "Environment"},
		},
	},
	{
		EventType:       "credit_card",
		Path:            "/credit-card",
		Endpoint:        "VoPay Credit Card Connection Webhook",
		ObjectType:      "credit_card",
		ExternalIDField: "CardID",
		StatusField:     "Status",
		Required: []Field{
			{Name: "CardID"},
			{Name: "LastFourDigits"},
			{Name: "Status"},
			{Name: ValidationKeyField},
		},
		Optional: []Field{
			{Name: "CardType"},
			{Name: "ExpiryDate"},
			{Name: "Environment"},
		},
	},
	{
		EventType:       "debit_card",
		Path:            "/debit-card",
		Endpoint:        "VoPay Debit Card Connection Webhook",
		ObjectType:      "debit_card",
		ExternalIDField: "CardID",
		StatusField:     "Status",
		Required: []Field{
			{Name: "CardID"},
			{Name: "LastFourDigits"},
			{Name: "Status"},
			{Name: ValidationKeyField},
		},
		Optional: []Field{
			{Name: "CardType"},
			{Name: "BankName"},
			{Name: "Environment"},
		},
	},
}

// Schemas returns the registered event schemas in route order.
func Schemas() []Schema {
	return schemas
}

// SchemaByEventType resolves a schema from a recorded event type.
func SchemaByEventType(eventType string) (Schema, bool) {
	for _, s := range schemas {
		if s.EventType == eventType {
			return s, true
		}
	}
	return Schema{}, false
}

// ParsePayload decodes a raw webhook body into a generic payload map.
func ParsePayload(raw []byte) (map[string]interface{}, error) {
	payload := make(map[string]interface{})
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// Identity extracts the external id and validation key from a payload,
// best effort. Both come back empty when absent so signature verification
// fails closed.
func Identity(s Schema, payload map[string]interface{}) (externalID, validationKey string) {
	externalID, _ = payload[s.ExternalIDField].(string)
	validationKey, _ = payload[ValidationKeyField].(string)
	return externalID, validationKey
}

// Event is a parsed, schema-validated webhook delivery ready for
// reconciliation.
type Event struct {
	EventType  string
	ObjectType string
	ExternalID string
	Status     string
	Metadata   map[string]interface{}
	Raw        []byte
}

// ParseEvent validates payload against s and builds the reconciler input.
// It returns a *MissingFieldError for the first absent or mistyped required
// field. Cross-field business validation is not done here.
func ParseEvent(s Schema, payload map[string]interface{}, raw []byte) (*Event, error) {
	for _, f := range s.Required {
		value, ok := payload[f.Name]
		if !ok || value == nil {
			return nil, &MissingFieldError{EventType: s.EventType, Field: f.Name, Reason: "missing"}
		}
		switch f.Kind {
		case KindString:
			str, isString := value.(string)
			if !isString {
				return nil, &MissingFieldError{EventType: s.EventType, Field: f.Name, Reason: "wrong type"}
			}
			if strings.TrimSpace(str) == "" {
				return nil, &MissingFieldError{EventType: s.EventType, Field: f.Name, Reason: "missing"}
			}
		case KindNumber:
			if _, isNumber := value.(float64); !isNumber {
				return nil, &MissingFieldError{EventType: s.EventType, Field: f.Name, Reason: "wrong type"}
			}
		}
	}

	externalID, _ := payload[s.ExternalIDField].(string)

	status := StatusUpdated
	if s.StatusField != "" {
		delivered, _ := payload[s.StatusField].(string)
		status = strings.ToLower(strings.TrimSpace(delivered))
	}

	return &Event{
		EventType:  s.EventType,
		ObjectType: s.ObjectType,
		ExternalID: strings.TrimSpace(externalID),
		Status:     status,
		Metadata:   buildMetadata(s, payload),
		Raw:        raw,
	}, nil
}

// buildMetadata collects every known field except the id, status and
// signature into snake_case metadata keys.
func buildMetadata(s Schema, payload map[string]interface{}) map[string]interface{} {
	meta := make(map[string]interface{})
	fields := make([]Field, 0, len(s.Required)+len(s.Optional))
	fields = append(fields, s.Required...)
	fields = append(fields, s.Optional...)

	for _, f := range fields {
		if f.Name == ValidationKeyField || f.Name == s.ExternalIDField || f.Name == s.StatusField {
			continue
		}
		value, ok := payload[f.Name]
		if !ok || value == nil {
			continue
		}
		key := f.MetaKey
		if key == "" {
			key = snakeCase(f.Name)
		}
		meta[key] = value
	}
	return meta
}

func snakeCase(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || (i > 0 && nextLower) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
