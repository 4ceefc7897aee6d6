package hiorg

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/elliotchance/phpserialize"
)

// UserRecord is the user information handed out by the SSO for a token.
type UserRecord struct {
	LastName         string    `json:"name"`
	FirstName        string    `json:"vorname"`
	Ident            string    `json:"kuerzel"`
	Groups           int64     `json:"gruppe"`
	Permissions      string    `json:"perms"`
	Username         string    `json:"username"`
	Email            string    `json:"email"`
	Qualification    string    `json:"quali"`
	PhonePrivate     string    `json:"telpriv"`
	PhoneWork        string    `json:"teldienst"`
	PhoneMobile      string    `json:"handy"`
	UserID           string    `json:"user_id"`
	OrganizationCode string    `json:"ov"`
	Expiry           time.Time `json:"login_expires,omitempty"`

	// Attributes holds every field of the payload as text, including the
	// ones without a dedicated field above.
	Attributes map[string]string `json:"-"`
}

// InGroup reports whether the group bit is set in the user's group sum.
func (u *UserRecord) InGroup(bit int64) bool {
	return u.Groups&bit != 0
}

// HasPermission reports whether perm is part of the comma separated permissions.
func (u *UserRecord) HasPermission(perm string) bool {
	for _, p := range strings.Split(u.Permissions, ",") {
		if strings.TrimSpace(p) == perm {
			return true
		}
	}
	return false
}

// decodeUserData reads the SSO payload, a PHP serialized associative array.
// A JSON object is accepted as well.
func decodeUserData(payload []byte) (*UserRecord, error) {
	attributes := map[string]string{}

	trimmed := bytes.TrimSpace(payload)
	if bytes.HasPrefix(trimmed, []byte("{")) {
		var values map[string]interface{}
		decoder := json.NewDecoder(bytes.NewReader(trimmed))
		decoder.UseNumber()
		if err := decoder.Decode(&values); err != nil {
			return nil, fmt.Errorf("decoding user data: %w", err)
		}
		for key, value := range values {
			attributes[key] = attributeText(value)
		}
	} else {
		values, err := phpserialize.UnmarshalAssociativeArray(trimmed)
		if err != nil {
			return nil, fmt.Errorf("decoding user data: %w", err)
		}
		for key, value := range values {
			attributes[attributeText(key)] = attributeText(value)
		}
	}

	user := &UserRecord{
		LastName:         attributes["name"],
		FirstName:        attributes["vorname"],
		Ident:            attributes["kuerzel"],
		Permissions:      attributes["perms"],
		Username:         attributes["username"],
		Email:            attributes["email"],
		Qualification:    attributes["quali"],
		PhonePrivate:     attributes["telpriv"],
		PhoneWork:        attributes["teldienst"],
		PhoneMobile:      attributes["handy"],
		UserID:           attributes["user_id"],
		OrganizationCode: attributes["ov"],
		Attributes:       attributes,
	}
	if groups := attributes["gruppe"]; groups != "" {
		n, err := strconv.ParseInt(groups, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid group sum '%s': %w", groups, err)
		}
		user.Groups = n
	}
	return user, nil
}

func attributeText(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case bool:
		if v {
			return "1"
		}
		return ""
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	}
	return fmt.Sprint(value)
}
