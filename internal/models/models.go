package models

import "time"

// Account roles.
const (
	RoleIndividual = "individual"
	RoleCorporate  = "corporate"
	RoleAdmin      = "admin"
)

// Account states.
const (
	UserStatusActive = "active"
	UserStatusBanned = "banned"
)

type User struct {
	ID                int64     `json:"id"`
	Username          string    `json:"username"`
	Email             string    `json:"email"`
	PasswordHash      string    `json:"-"`
	Role              string    `json:"role"`
	Status            string    `json:"status"`
	DisplayName       string    `json:"display_name"`
	Phone             string    `json:"phone,omitempty"`
	City              string    `json:"city,omitempty"`
	CompanyName       string    `json:"company_name,omitempty"`
	EmailVerified     bool      `json:"email_verified"`
	PhoneVerified     bool      `json:"phone_verified"`
	IdentityVerified  bool      `json:"identity_verified"`
	CorporateVerified bool      `json:"corporate_verified"`
	CreatedAt         time.Time `json:"created_at"`
}

// PublicProfile is the subset of a user shown on listing pages and store pages.
type PublicProfile struct {
	ID                int64     `json:"id"`
	Username          string    `json:"username"`
	DisplayName       string    `json:"display_name"`
	Role              string    `json:"role"`
	City              string    `json:"city,omitempty"`
	CompanyName       string    `json:"company_name,omitempty"`
	IdentityVerified  bool      `json:"identity_verified"`
	CorporateVerified bool      `json:"corporate_verified"`
	MemberSince       time.Time `json:"member_since"`
}

func (u *User) Public() PublicProfile {
	return PublicProfile{
		ID:                u.ID,
		Username:          u.Username,
		DisplayName:       u.DisplayName,
		Role:              u.Role,
		City:              u.City,
		CompanyName:       u.CompanyName,
		IdentityVerified:  u.IdentityVerified,
		CorporateVerified: u.CorporateVerified,
		MemberSince:       u.CreatedAt,
	}
}

// One-time code purposes.
const (
	OTPEmailVerify   = "email_verify"
	OTPPhoneVerify   = "phone_verify"
	OTPPasswordReset = "password_reset"
)

type OTPCode struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	Purpose     string     `json:"purpose"`
	Target      string     `json:"target"` // email address or phone number the code was sent to
	CodeHash    string     `json:"-"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	ExpiresAt   time.Time  `json:"expires_at"`
	UsedAt      *time.Time `json:"used_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type WebAuthnCredential struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"user_id"`
	CredentialID string     `json:"credential_id"`
	DataJSON     string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
}

type WebAuthnSession struct {
	ID        string     `json:"id"`
	UserID    int64      `json:"user_id"`
	Flow      string     `json:"flow"` // "register", "login"
	DataJSON  string     `json:"-"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type Category struct {
	ID        int64     `json:"id"`
	ParentID  *int64    `json:"parent_id,omitempty"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	SortOrder int       `json:"sort_order"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type VehicleBrand struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type VehicleModel struct {
	ID      int64  `json:"id"`
	BrandID int64  `json:"brand_id"`
	Name    string `json:"name"`
	Slug    string `json:"slug"`
}

type VehicleVersion struct {
	ID           int64  `json:"id"`
	ModelID      int64  `json:"model_id"`
	Name         string `json:"name"`
	YearFrom     int    `json:"year_from"`
	YearTo       int    `json:"year_to"` // 0 means still in production
	Fuel         string `json:"fuel,omitempty"`
	Transmission string `json:"transmission,omitempty"`
	BodyType     string `json:"body_type,omitempty"`
	EngineCC     int    `json:"engine_cc,omitempty"`
	Horsepower   int    `json:"horsepower,omitempty"`
	EurotaxCode  string `json:"eurotax_code,omitempty"`
}

// MinModelYear is the earliest production year a vehicle version may carry.
const MinModelYear = 1900

// Dated reports whether the version has a usable production start year.
func (v *VehicleVersion) Dated() bool { return v.YearFrom >= MinModelYear }

// CoversYear reports whether the version was produced in year. Undated
// versions cover no year.
func (v *VehicleVersion) CoversYear(year int) bool {
	if !v.Dated() || year < v.YearFrom {
		return false
	}
	return v.YearTo == 0 || year <= v.YearTo
}

// Listing states.
const (
	ListingPending  = "PENDING"
	ListingActive   = "ACTIVE"
	ListingRejected = "REJECTED"
	ListingPassive  = "PASSIVE"
	ListingSold     = "SOLD"
	ListingExpired  = "EXPIRED"
)

type Listing struct {
	ID               int64             `json:"id"`
	OwnerID          int64             `json:"owner_id"`
	OwnerName        string            `json:"owner_name,omitempty"`
	OwnerRole        string            `json:"owner_role,omitempty"`
	CategoryID       int64             `json:"category_id"`
	Title            string            `json:"title"`
	Description      string            `json:"description"`
	Price            int64             `json:"price"` // minor units (kuruş for TRY)
	Currency         string            `json:"currency"`
	City             string            `json:"city"`
	District         string            `json:"district,omitempty"`
	Status           string            `json:"status"`
	Attributes       map[string]string `json:"attributes,omitempty"`
	VehicleVersionID *int64            `json:"vehicle_version_id,omitempty"`
	SearchText       string            `json:"-"`
	ViewCount        int64             `json:"view_count"`
	FavoriteCount    int64             `json:"favorite_count"`
	RejectionReason  string            `json:"rejection_reason,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	PublishedAt      *time.Time        `json:"published_at,omitempty"`
	ExpiresAt        *time.Time        `json:"expires_at,omitempty"`
}

type ListingPhoto struct {
	ID          int64     `json:"id"`
	ListingID   int64     `json:"listing_id"`
	ObjectKey   string    `json:"-"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	SortOrder   int       `json:"sort_order"`
	CreatedAt   time.Time `json:"created_at"`
}

// SearchQuery is the user-facing filter set. It is what saved searches persist.
type SearchQuery struct {
	CategoryID *int64            `json:"category_id,omitempty"`
	Text       string            `json:"q,omitempty"`
	PriceMin   *int64            `json:"price_min,omitempty"`
	PriceMax   *int64            `json:"price_max,omitempty"`
	City       string            `json:"city,omitempty"`
	SellerRole string            `json:"seller_role,omitempty"`
	BrandID    *int64            `json:"brand_id,omitempty"`
	ModelID    *int64            `json:"model_id,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Sort       string            `json:"sort,omitempty"` // "newest", "price_asc", "price_desc"
}

type SavedSearch struct {
	ID        int64       `json:"id"`
	UserID    int64       `json:"user_id"`
	Name      string      `json:"name"`
	QueryJSON string      `json:"-"`
	Query     SearchQuery `json:"query"`
	Alert     bool        `json:"alert"`
	CreatedAt time.Time   `json:"created_at"`
}

type Conversation struct {
	ID              int64     `json:"id"`
	ListingID       int64     `json:"listing_id"`
	ListingTitle    string    `json:"listing_title,omitempty"`
	BuyerID         int64     `json:"buyer_id"`
	SellerID        int64     `json:"seller_id"`
	CounterpartName string    `json:"counterpart_name,omitempty"`
	UnreadCount     int       `json:"unread_count"`
	LastMessageAt   time.Time `json:"last_message_at"`
	CreatedAt       time.Time `json:"created_at"`
}

// HasParticipant reports whether userID is the buyer or the seller.
func (c *Conversation) HasParticipant(userID int64) bool {
	return c.BuyerID == userID || c.SellerID == userID
}

// Counterpart returns the other participant's id.
func (c *Conversation) Counterpart(userID int64) int64 {
	if c.BuyerID == userID {
		return c.SellerID
	}
	return c.BuyerID
}

type Message struct {
	ID             int64      `json:"id"`
	ConversationID int64      `json:"conversation_id"`
	SenderID       int64      `json:"sender_id"`
	Body           string     `json:"body"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

type Notification struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"user_id"`
	ActorID      *int64     `json:"actor_id,omitempty"`
	Type         string     `json:"type"`
	Title        string     `json:"title"`
	Body         string     `json:"body"`
	ResourcePath string     `json:"resource_path"`
	ListingID    *int64     `json:"listing_id,omitempty"`
	ReadAt       *time.Time `json:"read_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Verification kinds and states.
const (
	VerificationIdentity  = "identity"
	VerificationCorporate = "corporate"

	VerificationPending  = "PENDING"
	VerificationApproved = "APPROVED"
	VerificationRejected = "REJECTED"
)

type VerificationRequest struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	Kind        string     `json:"kind"`
	Status      string     `json:"status"`
	NationalID  string     `json:"national_id,omitempty"`
	FullName    string     `json:"full_name,omitempty"`
	BirthYear   int        `json:"birth_year,omitempty"`
	TaxNumber   string     `json:"tax_number,omitempty"`
	TaxOffice   string     `json:"tax_office,omitempty"`
	TradeName   string     `json:"trade_name,omitempty"`
	DocumentKey string     `json:"-"`
	ReviewerID  *int64     `json:"reviewer_id,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
}

type ModerationAction struct {
	ID         int64     `json:"id"`
	AdminID    int64     `json:"admin_id"`
	TargetType string    `json:"target_type"` // "listing", "user", "verification"
	TargetID   int64     `json:"target_id"`
	Action     string    `json:"action"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Page struct {
	ID        int64     `json:"id"`
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Published bool      `json:"published"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Webhook struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	URL       string    `json:"url"`
	Secret    string    `json:"-"`
	EventsCSV string    `json:"-"`
	Events    []string  `json:"events,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type WebhookDelivery struct {
	ID             int64     `json:"id"`
	WebhookID      int64     `json:"webhook_id"`
	Event          string    `json:"event"`
	DeliveryUID    string    `json:"delivery_uid"`
	Attempt        int       `json:"attempt"`
	StatusCode     int       `json:"status_code"`
	Success        bool      `json:"success"`
	Error          string    `json:"error,omitempty"`
	RequestBody    string    `json:"request_body,omitempty"`
	ResponseBody   string    `json:"response_body,omitempty"`
	DurationMS     int64     `json:"duration_ms"`
	RedeliveryOfID *int64    `json:"redelivery_of_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

type JobType string

const (
	JobSavedSearchMatch JobType = "saved_search.match"
	JobWebhookDeliver   JobType = "webhook.deliver"
	JobMailSend         JobType = "mail.send"
)

type Job struct {
	ID            int64      `json:"id"`
	Type          JobType    `json:"type"`
	Payload       string     `json:"payload"`
	DedupeKey     string     `json:"dedupe_key,omitempty"`
	Status        JobStatus  `json:"status"`
	AttemptCount  int        `json:"attempt_count"`
	MaxAttempts   int        `json:"max_attempts"`
	LastError     string     `json:"last_error,omitempty"`
	NextAttemptAt time.Time  `json:"next_attempt_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}
