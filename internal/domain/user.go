package domain

import "time"

// Estados de cuenta: solo "active" puede autenticarse.
const (
	StatusActive      = "active"
	StatusSuspended   = "suspended"
	StatusDeactivated = "deactivated"
)

// Roles de usuario.
const (
	RoleUser      = "user"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// LoginHistoryLimit acota el historial de logins por usuario.
const LoginHistoryLimit = 10

// DiasporaProfile agrupa los datos de diaspora del usuario.
type DiasporaProfile struct {
	CurrentCountry     string   `bson:"current_country" json:"currentCountry"`
	CurrentCity        string   `bson:"current_city" json:"currentCity"`
	OriginCity         string   `bson:"origin_city" json:"originCity"`
	DiasporaGeneration int      `bson:"diaspora_generation,omitempty" json:"diasporaGeneration,omitempty"`
	YearsInDiaspora    int      `bson:"years_in_diaspora,omitempty" json:"yearsInDiaspora,omitempty"`
	Languages          []string `bson:"languages,omitempty" json:"languages,omitempty"`
}

// LoginRecord registra un login exitoso.
type LoginRecord struct {
	At        time.Time `bson:"at" json:"at"`
	IP        string    `bson:"ip,omitempty" json:"ip,omitempty"`
	UserAgent string    `bson:"user_agent,omitempty" json:"userAgent,omitempty"`
}

// User es el documento de usuario en el store.
type User struct {
	ID           string `bson:"_id" json:"id"`
	FirstName    string `bson:"first_name" json:"firstName"`
	LastName     string `bson:"last_name" json:"lastName"`
	Username     string `bson:"username" json:"username"`
	Email        string `bson:"email" json:"email"`
	PasswordHash string `bson:"password_hash" json:"-"`

	Status string `bson:"status" json:"status"`
	Role   string `bson:"role" json:"role"`

	EmailVerified         bool       `bson:"email_verified" json:"emailVerified"`
	VerificationTokenHash string     `bson:"verification_token_hash,omitempty" json:"-"`
	VerificationExpiresAt *time.Time `bson:"verification_expires_at,omitempty" json:"-"`
	ResetTokenHash        string     `bson:"reset_token_hash,omitempty" json:"-"`
	ResetExpiresAt        *time.Time `bson:"reset_expires_at,omitempty" json:"-"`

	// TokenVersion invalida todo token emitido antes del ultimo bump.
	TokenVersion int64 `bson:"token_version" json:"-"`

	Profile DiasporaProfile `bson:"profile" json:"diasporaProfile"`
	Points  int             `bson:"points" json:"points"`

	LoginHistory []LoginRecord `bson:"login_history,omitempty" json:"-"`
	LastActiveAt *time.Time    `bson:"last_active_at,omitempty" json:"lastActiveAt,omitempty"`
	CreatedAt    time.Time     `bson:"created_at" json:"createdAt"`
	UpdatedAt    time.Time     `bson:"updated_at" json:"updatedAt"`
}

// Identity es la proyeccion tipada que viaja en el contexto de cada request.
type Identity struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Status   string `json:"status"`
}

func (u User) Identity() Identity {
	return Identity{
		ID:       u.ID,
		Email:    u.Email,
		Username: u.Username,
		Role:     u.Role,
		Status:   u.Status,
	}
}

func (u User) IsActive() bool {
	return u.Status == StatusActive
}
