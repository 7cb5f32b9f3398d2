package user

import (
	"context"
	"errors"
	"net/mail"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/Mavuisra/naklass-sub005/core"
)

// PasswordResetService sends password reset links and applies the new passwords.
type PasswordResetService struct {
	usrSvc  *Service
	tokens  *TokenGenerator
	mailSvc core.EmailService
}

func NewPasswordResetService(usrSvc *Service, tokens *TokenGenerator, mailSvc core.EmailService) *PasswordResetService {
	return &PasswordResetService{usrSvc: usrSvc, tokens: tokens, mailSvc: mailSvc}
}

func invalidTokenError() error {
	return core.NewValidationError(ErrInvalidToken, core.FieldError{Field: "token", Error: "invalid or expired token"})
}

// RequestPasswordReset mails a reset link to every active account using email.
// The same address may be used in several schools, each account gets its own link.
func (svc *PasswordResetService) RequestPasswordReset(ctx context.Context, email string) error {
	email = core.CleanString(email, true /* lower */)
	if email == "" {
		return ErrNotFound
	}
	candidates, err := svc.usrSvc.repo.ListByLogin(ctx, email)
	if err != nil {
		return pkgerrors.Wrap(err, "listing users by email")
	}

	var msgs []*core.EmailMessage
	for _, usr := range candidates {
		if usr.Email != email || !usr.IsActive {
			continue
		}
		msgs = append(msgs, &core.EmailMessage{
			To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
			Subject:      "Réinitialisation de votre mot de passe",
			TemplateName: "password_reset",
			TemplateData: map[string]interface{}{
				"Name":     usr.Name,
				"Username": usr.Username,
				"UID":      EncodeUID(usr),
				"Token":    svc.tokens.MakeToken(usr),
			},
		})
	}
	if len(msgs) == 0 {
		return ErrNotFound
	}
	svc.mailSvc.SendMessages(msgs...)
	return nil
}

// ResetPassword checks the uid and token of a reset link and sets the new password.
func (svc *PasswordResetService) ResetPassword(ctx context.Context, rp ResetUserPassword) error {
	rp.UID = core.CleanString(rp.UID)
	rp.Token = core.CleanString(rp.Token)
	if err := svc.usrSvc.validator.Struct(rp); err != nil {
		return err
	}

	id, err := DecodeUID(rp.UID)
	if err != nil {
		return invalidTokenError()
	}
	usr, err := svc.usrSvc.repo.GetUser(ctx, GetFilter{ID: id})
	if errors.Is(err, ErrNotFound) {
		return invalidTokenError()
	} else if err != nil {
		return err
	}
	if !usr.IsActive {
		return invalidTokenError()
	}
	if err := svc.tokens.CheckToken(usr, rp.Token); err != nil {
		return invalidTokenError()
	}

	if err := usr.SetPassword(rp.Password); err != nil {
		return pkgerrors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err = svc.usrSvc.repo.UpdateUser(ctx, usr)
	return err
}
