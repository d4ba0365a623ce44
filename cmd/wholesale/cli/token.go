package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/odyssey-erp/wholesale/internal/app"
	"github.com/odyssey-erp/wholesale/internal/rbac"
)

// TokenOptions configures TokenCommand.
type TokenOptions struct {
	UserID     string
	Name       string
	Role       string
	TTL        time.Duration
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

type tokenOutput struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Role      rbac.Role `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenCommand prints a signed bearer token for an operator or integration.
// It returns the process exit code.
func TokenCommand(identity *app.Identity, opts TokenOptions) int {
	role, err := rbac.ParseRole(opts.Role)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "token: %v\n", err)
		return 2
	}
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	p := rbac.Principal{UserID: opts.UserID, Name: opts.Name, Role: role}
	token, err := identity.IssueToken(p, opts.TTL)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "token: %v\n", err)
		return 2
	}
	if !opts.JSONOutput {
		fmt.Fprintln(opts.Stdout, token)
		return 0
	}
	out := tokenOutput{Token: token, UserID: p.UserID, Role: role, ExpiresAt: time.Now().UTC().Add(opts.TTL).Truncate(time.Second)}
	if err := json.NewEncoder(opts.Stdout).Encode(out); err != nil {
		fmt.Fprintf(opts.Stderr, "token: %v\n", err)
		return 1
	}
	return 0
}
