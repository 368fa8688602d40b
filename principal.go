package tokenforge

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"

	"github.com/markjoyeuxcom/tokenforge/jwt"
)

const principalVersionV1 = 1

// Principal is the authenticated identity extracted from a valid access
// token. It is what Validate returns and what the validation cache stores,
// so callers never touch raw claims.
type Principal struct {
	UserID    string
	Username  string
	Email     string
	Role      string
	FirstName string
	LastName  string

	// TokenID is the jti of the access token the principal was minted from.
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func principalFromClaims(claims *jwt.AccessClaims) *Principal {
	p := &Principal{
		UserID:    claims.Subject,
		Username:  claims.Username,
		Email:     claims.Email,
		Role:      claims.Role,
		FirstName: claims.FirstName,
		LastName:  claims.LastName,
		TokenID:   claims.ID,
	}
	if claims.IssuedAt != nil {
		p.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p
}

// MarshalBinary encodes the principal into the compact record format the
// validation cache accounts bytes for. Timestamps round to unix seconds.
func (p *Principal) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(principalVersionV1)

	for _, s := range []string{p.UserID, p.Username, p.Email, p.Role, p.FirstName, p.LastName, p.TokenID} {
		if len(s) > 65535 {
			return nil, errors.New("principal field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(s))); err != nil {
			return nil, err
		}
		buf.WriteString(s)
	}

	for _, v := range []int64{p.IssuedAt.Unix(), p.ExpiresAt.Unix()} {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a record produced by MarshalBinary.
func (p *Principal) UnmarshalBinary(data []byte) error {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return err
	}
	if version != principalVersionV1 {
		return errors.New("invalid principal record version")
	}

	for _, s := range []*string{&p.UserID, &p.Username, &p.Email, &p.Role, &p.FirstName, &p.LastName, &p.TokenID} {
		var length uint16
		if err := binary.Read(reader, binary.BigEndian, &length); err != nil {
			return err
		}
		field := make([]byte, length)
		if _, err := io.ReadFull(reader, field); err != nil {
			return err
		}
		*s = string(field)
	}

	var issued, expires int64
	if err := binary.Read(reader, binary.BigEndian, &issued); err != nil {
		return err
	}
	if err := binary.Read(reader, binary.BigEndian, &expires); err != nil {
		return err
	}
	p.IssuedAt = time.Unix(issued, 0).UTC()
	p.ExpiresAt = time.Unix(expires, 0).UTC()

	return nil
}
