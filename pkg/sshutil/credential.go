package sshutil

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/orion-fleet/orion/internal/errors"
)

// AuthType selects how a Credential authenticates.
type AuthType string

const (
	AuthPassword AuthType = "password"
	AuthKey      AuthType = "key"
)

// Credential describes how to reach and log into one device.
// Password doubles as the key passphrase when AuthType is AuthKey.
type Credential struct {
	Host           string   `json:"host" yaml:"host" validate:"required"`
	Port           int      `json:"port" yaml:"port" validate:"min=1,max=65535"`
	Username       string   `json:"username" yaml:"username" validate:"required"`
	AuthType       AuthType `json:"auth_type" yaml:"auth_type" validate:"required"`
	Password       string   `json:"password,omitempty" yaml:"password,omitempty"`
	PrivateKeyPath string   `json:"private_key_path,omitempty" yaml:"private_key_path,omitempty"`
}

var validate = validator.New()

// Validate checks the credential without touching the network. Every failure
// is an ErrConfig.
func (c Credential) Validate() error {
	switch c.AuthType {
	case AuthPassword, AuthKey:
	case "":
		return errors.New(errors.ErrConfig,
			"auth type is required",
			"Use 'password' or 'key'")
	default:
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("unsupported auth type '%s'", c.AuthType),
			"Use 'password' or 'key'")
	}

	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if ve, ok := err.(validator.ValidationErrors); ok {
			fieldErrs = ve
		}
		msgs := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			msgs = append(msgs, formatFieldError(fe))
		}
		msg := "invalid credential"
		if len(msgs) > 0 {
			msg = "invalid credential: " + strings.Join(msgs, "; ")
		}
		return errors.WrapWithCode(err, errors.ErrConfig, msg,
			"Check host, port, and username")
	}

	if c.AuthType == AuthKey && c.PrivateKeyPath == "" {
		return errors.New(errors.ErrConfig,
			"privateKeyPath required for key auth",
			"Pass the path to the private key, or set IdentityFile in ssh_config")
	}
	return nil
}

// Address returns host:port for dialing.
func (c Credential) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func formatFieldError(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min", "max":
		return fmt.Sprintf("%s must be between 1 and 65535", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
