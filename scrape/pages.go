package scrape

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/fabien-chebel/hiorg-cli/hiorg"
	"golang.org/x/net/html"
)

// ParseError reports a scraped page that does not look as expected.
type ParseError struct {
	Page   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unexpected content on %s page: %s", e.Page, e.Reason)
}

// PageParser turns the scraped pages into user records. It is the only part
// of the extractor that knows the markup.
type PageParser interface {
	// Members parses the member listing rows.
	Members(body []byte) ([]hiorg.UserRecord, error)
	// Account finds the username and permissions of userID on the user list page.
	Account(page []byte, userID string) (username, permissions string, err error)
}

// Member listing columns.
const (
	columnLastName = iota
	columnFirstName
	columnIdent
	columnQualification
	columnLink
	columnCount
)

// Delimiters on the user list page.
const (
	accountAnchor     = `user_id=%s"`
	accountNameStart  = ">"
	accountNameEnd    = "</a>"
	accountPermsStart = `<td class="rechte">`
	accountPermsEnd   = "</td>"
	accountRowEnd     = "</tr>"
)

const memberLinkUserIDKey = "user_id"

var warningIcon = regexp.MustCompile(`(?i)<img[^>]*warn[^>]*>\s*`)

// entities used by HiOrg-Server for German names.
var entities = strings.NewReplacer(
	"&auml;", "ä",
	"&ouml;", "ö",
	"&uuml;", "ü",
	"&Auml;", "Ä",
	"&Ouml;", "Ö",
	"&Uuml;", "Ü",
	"&szlig;", "ß",
	"&eacute;", "é",
	"&amp;", "&",
	"&#039;", "'",
	"&quot;", `"`,
)

// HiOrgPages parses the pages of HiOrg-Server as served today.
type HiOrgPages struct{}

func (HiOrgPages) Members(body []byte) ([]hiorg.UserRecord, error) {
	rows, err := memberRows(body)
	if err != nil {
		return nil, err
	}

	users := make([]hiorg.UserRecord, 0, len(rows))
	for i, row := range rows {
		if len(row) < columnCount {
			return nil, &ParseError{Page: "members", Reason: fmt.Sprintf("row %d has %d columns", i, len(row))}
		}
		userID, err := linkUserID(row[columnLink])
		if err != nil {
			return nil, &ParseError{Page: "members", Reason: fmt.Sprintf("row %d: %s", i, err)}
		}
		users = append(users, hiorg.UserRecord{
			LastName:      cleanName(row[columnLastName]),
			FirstName:     cleanName(row[columnFirstName]),
			Ident:         strings.TrimSpace(row[columnIdent]),
			Qualification: strings.TrimSpace(row[columnQualification]),
			UserID:        userID,
		})
	}
	return users, nil
}

// memberRows accepts either a bare row array or an object with a "data" array.
func memberRows(body []byte) ([][]string, error) {
	trimmed := bytes.TrimSpace(body)
	var raw []json.RawMessage
	if bytes.HasPrefix(trimmed, []byte("[")) {
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, &ParseError{Page: "members", Reason: err.Error()}
		}
	} else {
		var wrapper struct {
			Data []json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &wrapper); err != nil {
			return nil, &ParseError{Page: "members", Reason: err.Error()}
		}
		if wrapper.Data == nil {
			return nil, &ParseError{Page: "members", Reason: "no data rows"}
		}
		raw = wrapper.Data
	}

	rows := make([][]string, 0, len(raw))
	for i, r := range raw {
		var cells []interface{}
		if err := json.Unmarshal(r, &cells); err != nil {
			return nil, &ParseError{Page: "members", Reason: fmt.Sprintf("row %d is not an array", i)}
		}
		row := make([]string, len(cells))
		for j, cell := range cells {
			switch v := cell.(type) {
			case nil:
			case string:
				row[j] = v
			default:
				row[j] = fmt.Sprint(v)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func cleanName(s string) string {
	return strings.TrimSpace(entities.Replace(warningIcon.ReplaceAllString(s, "")))
}

// linkUserID reads the numeric user id from the href of the first anchor.
func linkUserID(cell string) (string, error) {
	tokenizer := html.NewTokenizer(strings.NewReader(cell))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return "", fmt.Errorf("no user link")
		case html.StartTagToken, html.SelfClosingTagToken:
			token := tokenizer.Token()
			if token.Data != "a" {
				continue
			}
			for _, attr := range token.Attr {
				if attr.Key != "href" {
					continue
				}
				href, err := url.Parse(attr.Val)
				if err != nil {
					return "", fmt.Errorf("invalid user link '%s'", attr.Val)
				}
				id := href.Query().Get(memberLinkUserIDKey)
				if id == "" || strings.Trim(id, "0123456789") != "" {
					return "", fmt.Errorf("user link '%s' has no numeric user id", attr.Val)
				}
				return id, nil
			}
		}
	}
}

func (HiOrgPages) Account(page []byte, userID string) (string, string, error) {
	content := string(page)

	anchor := fmt.Sprintf(accountAnchor, userID)
	start := strings.Index(content, anchor)
	if start < 0 {
		return "", "", &ParseError{Page: "user list", Reason: fmt.Sprintf("no entry for user %s", userID)}
	}
	rest := content[start+len(anchor):]

	username, rest, ok := between(rest, accountNameStart, accountNameEnd)
	if !ok {
		return "", "", &ParseError{Page: "user list", Reason: fmt.Sprintf("no username for user %s", userID)}
	}

	row := rest
	if end := strings.Index(row, accountRowEnd); end >= 0 {
		row = row[:end]
	}
	permissions, _, ok := between(row, accountPermsStart, accountPermsEnd)
	if !ok {
		return "", "", &ParseError{Page: "user list", Reason: fmt.Sprintf("no permissions for user %s", userID)}
	}

	return strings.TrimSpace(entities.Replace(username)), strings.TrimSpace(permissions), nil
}

// between returns the text between the first start and the following end
// delimiter, and what comes after end.
func between(s, start, end string) (string, string, bool) {
	i := strings.Index(s, start)
	if i < 0 {
		return "", s, false
	}
	s = s[i+len(start):]
	j := strings.Index(s, end)
	if j < 0 {
		return "", s, false
	}
	return s[:j], s[j+len(end):], true
}
