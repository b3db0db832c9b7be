package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"comlinepm/internal/ports"
	"comlinepm/internal/types"
)

const sshMethodName = "ssh"

// SSHAssertionTTL bounds how long a signed login assertion is accepted.
const SSHAssertionTTL = 15 * time.Minute

// sshMethod signs a login assertion with a locally resolvable private key.
// The credential, when given, is the key passphrase.
func sshMethod(keys ports.KeyResolverPort, now func() time.Time) Method {
	return Method{
		Name:        sshMethodName,
		Description: "SSH Authentication with a Private Key",
		Login: func(ctx context.Context, req types.LoginRequest) (types.Session, error) {
			if keys == nil {
				return types.Session{}, keyUnavailable(req.Target, errors.New("no key resolver configured"))
			}
			pem, source, err := keys.ResolveKey(ctx)
			if err != nil {
				return types.Session{}, keyUnavailable(req.Target, err)
			}
			signer, err := parseSigner(pem, req.Credential.Secret)
			if err != nil {
				return types.Session{}, keyUnavailable(req.Target, fmt.Errorf("%s: %w", source, err))
			}
			issuedAt := now().UTC()
			token, err := SignAssertion(signer, req.Registry.Name, req.Target, issuedAt)
			if err != nil {
				return types.Session{}, err
			}
			return types.Session{
				Subject:   ssh.FingerprintSHA256(signer.PublicKey()),
				Token:     token,
				ExpiresAt: issuedAt.Add(SSHAssertionTTL),
			}, nil
		},
	}
}

func parseSigner(pem []byte, passphrase types.Secret) (ssh.Signer, error) {
	if passphrase != "" {
		return ssh.ParsePrivateKeyWithPassphrase(pem, []byte(passphrase.Reveal()))
	}
	signer, err := ssh.ParsePrivateKey(pem)
	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) {
		return nil, fmt.Errorf("key is encrypted, a passphrase is required")
	}
	return signer, err
}

// SignAssertion produces "<payload>.<signature>", both base64url encoded.
// The payload binds registry, target and issue time.
func SignAssertion(signer ssh.Signer, registry string, target string, issuedAt time.Time) (types.Secret, error) {
	payload := []byte(fmt.Sprintf("comlinepm-login\n%s\n%s\n%d", registry, target, issuedAt.Unix()))
	sig, err := signer.Sign(rand.Reader, payload)
	if err != nil {
		return "", fmt.Errorf("sign login assertion: %w", err)
	}
	enc := base64.RawURLEncoding
	return types.Secret(enc.EncodeToString(payload) + "." + enc.EncodeToString(ssh.Marshal(sig))), nil
}

// VerifyAssertion checks a token produced by SignAssertion against key.
func VerifyAssertion(key ssh.PublicKey, token types.Secret) error {
	enc := base64.RawURLEncoding
	head, tail, ok := strings.Cut(token.Reveal(), ".")
	if !ok {
		return errors.New("malformed assertion")
	}
	payload, err := enc.DecodeString(head)
	if err != nil {
		return fmt.Errorf("decode assertion payload: %w", err)
	}
	blob, err := enc.DecodeString(tail)
	if err != nil {
		return fmt.Errorf("decode assertion signature: %w", err)
	}
	var sig ssh.Signature
	if err := ssh.Unmarshal(blob, &sig); err != nil {
		return fmt.Errorf("decode assertion signature: %w", err)
	}
	return key.Verify(payload, &sig)
}

func keyUnavailable(target string, err error) error {
	return &types.AuthError{Kind: types.ErrAuthKeyUnavailable, Method: sshMethodName, Target: target, Err: err}
}
