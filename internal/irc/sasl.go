package irc

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"hash"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Supported SASL mechanisms
const (
	MechanismPlain       = "PLAIN"
	MechanismExternal    = "EXTERNAL"
	MechanismScramSHA256 = "SCRAM-SHA-256"
	MechanismScramSHA512 = "SCRAM-SHA-512"
)

// authenticateChunk is the longest AUTHENTICATE payload per line
const authenticateChunk = 400

var errSASLAborted = errors.New("sasl aborted")

// mechanism produces the client side of a SASL exchange. Step receives the
// decoded server challenge and returns the raw response.
type mechanism interface {
	Name() string
	Step(challenge []byte) ([]byte, error)
}

func newMechanism(name, username, password string) (mechanism, error) {
	switch strings.ToUpper(name) {
	case MechanismPlain:
		return &plainMechanism{username: username, password: password}, nil
	case MechanismExternal:
		return externalMechanism{}, nil
	case MechanismScramSHA256:
		return newScram(MechanismScramSHA256, sha256.New, username, password)
	case MechanismScramSHA512:
		return newScram(MechanismScramSHA512, sha512.New, username, password)
	}
	return nil, fmt.Errorf("unsupported SASL mechanism %q", name)
}

type plainMechanism struct {
	username string
	password string
	sent     bool
}

func (p *plainMechanism) Name() string { return MechanismPlain }

func (p *plainMechanism) Step([]byte) ([]byte, error) {
	if p.sent {
		return nil, fmt.Errorf("%w: unexpected PLAIN challenge", errSASLAborted)
	}
	p.sent = true
	return []byte(p.username + "\x00" + p.username + "\x00" + p.password), nil
}

// externalMechanism relies on the TLS client certificate
type externalMechanism struct{}

func (externalMechanism) Name() string { return MechanismExternal }

func (externalMechanism) Step([]byte) ([]byte, error) { return nil, nil }

type scramMechanism struct {
	name     string
	h        func() hash.Hash
	username string
	password string

	step        int
	clientNonce string
	clientFirst string
	authMessage string
	serverKey   []byte
}

func newScram(name string, h func() hash.Hash, username, password string) (*scramMechanism, error) {
	nonce := make([]byte, 18)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return &scramMechanism{
		name:        name,
		h:           h,
		username:    scramEscape(username),
		password:    password,
		clientNonce: base64.RawStdEncoding.EncodeToString(nonce),
	}, nil
}

func (s *scramMechanism) Name() string { return s.name }

func (s *scramMechanism) Step(challenge []byte) ([]byte, error) {
	s.step++
	switch s.step {
	case 1:
		s.clientFirst = "n=" + s.username + ",r=" + s.clientNonce
		return []byte("n,," + s.clientFirst), nil
	case 2:
		return s.clientFinal(string(challenge))
	case 3:
		return nil, s.verifyServer(string(challenge))
	}
	return nil, fmt.Errorf("%w: unexpected SCRAM challenge", errSASLAborted)
}

func (s *scramMechanism) clientFinal(serverFirst string) ([]byte, error) {
	params := parseSCRAMParams(serverFirst)

	serverNonce, ok := params["r"]
	if !ok || !strings.HasPrefix(serverNonce, s.clientNonce) {
		return nil, fmt.Errorf("%w: invalid server nonce", errSASLAborted)
	}
	salt, err := base64.StdEncoding.DecodeString(params["s"])
	if err != nil || len(salt) == 0 {
		return nil, fmt.Errorf("%w: invalid salt", errSASLAborted)
	}
	iterations, err := strconv.Atoi(params["i"])
	if err != nil || iterations <= 0 {
		return nil, fmt.Errorf("%w: invalid iteration count", errSASLAborted)
	}

	salted := pbkdf2.Key([]byte(s.password), salt, iterations, s.h().Size(), s.h)
	clientKey := computeHMAC(s.h, salted, "Client Key")
	storedKey := computeHash(s.h, clientKey)
	s.serverKey = computeHMAC(s.h, salted, "Server Key")

	withoutProof := "c=" + base64.StdEncoding.EncodeToString([]byte("n,,")) + ",r=" + serverNonce
	s.authMessage = s.clientFirst + "," + serverFirst + "," + withoutProof
	signature := computeHMAC(s.h, storedKey, s.authMessage)

	proof := make([]byte, len(clientKey))
	for i := range clientKey {
		proof[i] = clientKey[i] ^ signature[i]
	}
	return []byte(withoutProof + ",p=" + base64.StdEncoding.EncodeToString(proof)), nil
}

func (s *scramMechanism) verifyServer(serverFinal string) error {
	params := parseSCRAMParams(serverFinal)
	if e, ok := params["e"]; ok {
		return fmt.Errorf("%w: server reported %s", errSASLAborted, e)
	}
	expected := base64.StdEncoding.EncodeToString(computeHMAC(s.h, s.serverKey, s.authMessage))
	if !hmac.Equal([]byte(params["v"]), []byte(expected)) {
		return fmt.Errorf("%w: server signature mismatch", errSASLAborted)
	}
	return nil
}

func scramEscape(name string) string {
	return strings.NewReplacer("=", "=3D", ",", "=2C").Replace(name)
}

func parseSCRAMParams(message string) map[string]string {
	params := make(map[string]string)
	for _, part := range strings.Split(message, ",") {
		if len(part) >= 2 && part[1] == '=' {
			params[part[:1]] = part[2:]
		}
	}
	return params
}

func computeHMAC(h func() hash.Hash, key []byte, data string) []byte {
	mac := hmac.New(h, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

func computeHash(h func() hash.Hash, data []byte) []byte {
	hasher := h()
	hasher.Write(data)
	return hasher.Sum(nil)
}

// encodeAuthenticate splits a response into AUTHENTICATE payloads. An empty
// response is "+", and a payload ending exactly on a chunk boundary is
// followed by "+".
func encodeAuthenticate(response []byte) []string {
	if len(response) == 0 {
		return []string{"+"}
	}
	encoded := base64.StdEncoding.EncodeToString(response)
	var out []string
	for len(encoded) >= authenticateChunk {
		out = append(out, encoded[:authenticateChunk])
		encoded = encoded[authenticateChunk:]
	}
	if encoded == "" {
		encoded = "+"
	}
	return append(out, encoded)
}

// decodeAuthenticate decodes one server challenge; "+" is empty
func decodeAuthenticate(payload string) ([]byte, error) {
	if payload == "+" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(payload)
}
