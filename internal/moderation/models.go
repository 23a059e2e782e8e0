package moderation

import "time"

// Permission represents a moderator action that can be performed
type Permission string

const (
	PermissionRunJobs         Permission = "run_jobs"
	PermissionEvaluateAccount Permission = "evaluate_account"
	PermissionClearAccount    Permission = "clear_account"
	PermissionGotoAccount     Permission = "goto_account"
	PermissionViewAuditLog    Permission = "view_audit_log"
)

// AllPermissions returns all available permissions
func AllPermissions() []Permission {
	return []Permission{
		PermissionRunJobs,
		PermissionEvaluateAccount,
		PermissionClearAccount,
		PermissionGotoAccount,
		PermissionViewAuditLog,
	}
}

// RoleName represents the name of a moderation role
type RoleName string

const (
	RoleAdmin     RoleName = "admin"
	RoleModerator RoleName = "moderator"
)

// Role defines a set of permissions for moderators
type Role struct {
	Name        RoleName     `json:"-"` // Set from map key during loading
	Description string       `json:"description"`
	Permissions []Permission `json:"permissions"`
}

// HasPermission checks if this role has the given permission
func (r *Role) HasPermission(perm Permission) bool {
	for _, p := range r.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// ModeratorUser represents a subreddit moderator allowed to use the bot's tools
type ModeratorUser struct {
	Username string   `json:"username"`
	Role     RoleName `json:"role"`
	Note     string   `json:"note,omitempty"`
}

// Config represents the moderation configuration loaded from JSON
type Config struct {
	Roles map[RoleName]*Role `json:"roles"`
	Users []ModeratorUser    `json:"users"`
}

// Validate checks that the config is valid
func (c *Config) Validate() error {
	if c.Roles == nil {
		c.Roles = make(map[RoleName]*Role)
	}

	// Validate that all users reference valid roles
	for _, user := range c.Users {
		if user.Username == "" {
			return &ConfigError{
				Field:   "users",
				Message: "user entry is missing a username",
			}
		}
		if _, ok := c.Roles[user.Role]; !ok {
			return &ConfigError{
				Field:   "users",
				Message: "user " + user.Username + " references unknown role: " + string(user.Role),
			}
		}
	}

	// Set role names from map keys
	for name, role := range c.Roles {
		role.Name = name
	}

	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "moderation config error in " + e.Field + ": " + e.Message
}

// AuditAction represents a type of moderation action
type AuditAction string

const (
	AuditActionReportAccount AuditAction = "report_account"
	AuditActionClearAccount  AuditAction = "clear_account"
	AuditActionPublish       AuditAction = "publish_bucket"
	AuditActionIngest        AuditAction = "ingest_verdicts"
	AuditActionInstallJobs   AuditAction = "install_jobs"
)

// AuditEntry represents a logged moderation action
type AuditEntry struct {
	ID        string            `json:"id"`
	Action    AuditAction       `json:"action"`
	Actor     string            `json:"actor"`  // moderator username or "automod"
	Target    string            `json:"target"` // account id, contribution id or page
	Reason    string            `json:"reason"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	AutoMod   bool              `json:"auto_mod"` // true if action was automatic
}
