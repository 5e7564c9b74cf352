package authcore

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// Register creates a new account. The password is hashed with argon2id
// before it reaches the store; the plaintext never leaves this function.
//
// A taken identifier returns [ErrAccountExists]. Register does not log the
// new user in; clients follow up with [Engine.Login].
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*Identity, error) {
	if !e.config.Account.Enabled {
		return nil, ErrForbidden
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Identifier = strings.TrimSpace(req.Identifier)

	if req.Name == "" || req.Identifier == "" || req.Password == "" {
		e.metricInc(MetricLoginRejected)
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", ErrValidation, func() map[string]string {
			return map[string]string{
				"reason": "empty_input",
			}
		})
		return nil, ErrValidation
	}

	hash, err := e.passwords.Hash(req.Password)
	if err != nil {
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", ErrValidation, func() map[string]string {
			return map[string]string{
				"identifier": req.Identifier,
				"reason":     "weak_password",
			}
		})
		return nil, ErrValidation
	}
	req.Password = ""

	roles := req.Roles
	if roles == 0 {
		roles = e.config.Account.DefaultRoles
	}

	user := &UserRecord{
		UserID:       uuid.NewString(),
		Name:         req.Name,
		Identifier:   req.Identifier,
		PasswordHash: hash,
		Roles:        roles,
	}

	if err := e.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrAccountExists) {
			e.metricInc(MetricAccountCreationDuplicate)
			e.emitAudit(ctx, auditEventRegisterDuplicate, false, "", ErrAccountExists, func() map[string]string {
				return map[string]string{
					"identifier": req.Identifier,
				}
			})
			return nil, ErrAccountExists
		}
		return nil, e.storeFailure(ctx, auditEventRegisterFailure, "", func() map[string]string {
			return map[string]string{
				"identifier": req.Identifier,
				"reason":     "store_write_failed",
			}
		})
	}

	e.metricInc(MetricAccountCreationSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, user.UserID, nil, func() map[string]string {
		return map[string]string{
			"identifier": req.Identifier,
		}
	})

	return &Identity{
		UserID: user.UserID,
		Name:   user.Name,
		Roles:  user.Roles,
	}, nil
}
