package scrape

import (
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/publicsuffix"
)

const cookieSchema = `CREATE TABLE IF NOT EXISTS cookies (
	domain    TEXT NOT NULL,
	name      TEXT NOT NULL,
	path      TEXT NOT NULL,
	value     TEXT NOT NULL,
	expires   INTEGER NOT NULL DEFAULT 0,
	secure    INTEGER NOT NULL DEFAULT 0,
	host_only INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (domain, name, path)
)`

// cookieStore is an http.CookieJar kept in a SQLite file in a private
// directory. The file is the only copy of the cookies. Close removes the
// directory.
type cookieStore struct {
	dir    string
	db     *sql.DB
	logger log.FieldLogger
}

func openCookieStore(parent string, logger log.FieldLogger) (*cookieStore, error) {
	dir, err := os.MkdirTemp(parent, "hiorg-session-")
	if err != nil {
		return nil, fmt.Errorf("creating cookie directory: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "cookies.db"))
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("opening cookie database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(cookieSchema); err != nil {
		db.Close()
		os.RemoveAll(dir)
		return nil, fmt.Errorf("creating cookie table: %w", err)
	}

	return &cookieStore{dir: dir, db: db, logger: logger}, nil
}

func (s *cookieStore) SetCookies(u *url.URL, cookies []*http.Cookie) {
	host := strings.ToLower(u.Hostname())
	now := time.Now()

	for _, c := range cookies {
		domain, hostOnly, ok := cookieDomain(host, c.Domain)
		if !ok {
			s.logger.Debugf("ignoring cookie '%s' for foreign domain '%s'", c.Name, c.Domain)
			continue
		}
		path := c.Path
		if path == "" || path[0] != '/' {
			path = defaultCookiePath(u.Path)
		}

		var expires int64
		switch {
		case c.MaxAge < 0:
			expires = -1
		case c.MaxAge > 0:
			expires = now.Add(time.Duration(c.MaxAge) * time.Second).Unix()
		case !c.Expires.IsZero():
			expires = c.Expires.Unix()
			if !c.Expires.After(now) {
				expires = -1
			}
		}

		if expires < 0 {
			_, err := s.db.Exec(`DELETE FROM cookies WHERE domain = ? AND name = ? AND path = ?`, domain, c.Name, path)
			if err != nil {
				s.logger.Warnf("failed to delete cookie '%s': %s", c.Name, err)
			}
			continue
		}
		_, err := s.db.Exec(
			`INSERT OR REPLACE INTO cookies (domain, name, path, value, expires, secure, host_only) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			domain, c.Name, path, c.Value, expires, sqlBool(c.Secure), sqlBool(hostOnly),
		)
		if err != nil {
			s.logger.Warnf("failed to persist cookie '%s': %s", c.Name, err)
		}
	}
}

func (s *cookieStore) Cookies(u *url.URL) []*http.Cookie {
	host := strings.ToLower(u.Hostname())
	path := u.Path
	if path == "" {
		path = "/"
	}

	rows, err := s.db.Query(
		`SELECT name, value, domain, path, secure, host_only FROM cookies
		 WHERE expires = 0 OR expires > ?
		 ORDER BY length(path) DESC, rowid`,
		time.Now().Unix(),
	)
	if err != nil {
		s.logger.Warnf("failed to read cookies: %s", err)
		return nil
	}
	defer rows.Close()

	var cookies []*http.Cookie
	for rows.Next() {
		var (
			name, value, domain, cookiePath string
			secureFlag, hostOnlyFlag        int
		)
		if err := rows.Scan(&name, &value, &domain, &cookiePath, &secureFlag, &hostOnlyFlag); err != nil {
			s.logger.Warnf("failed to read cookie row: %s", err)
			return nil
		}
		if secureFlag == 1 && u.Scheme != "https" {
			continue
		}
		if hostOnlyFlag == 1 && host != domain || hostOnlyFlag == 0 && !domainMatch(host, domain) {
			continue
		}
		if !pathMatch(path, cookiePath) {
			continue
		}
		cookies = append(cookies, &http.Cookie{Name: name, Value: value})
	}
	if err := rows.Err(); err != nil {
		s.logger.Warnf("failed to read cookies: %s", err)
		return nil
	}
	return cookies
}

// cookieDomain returns the domain a cookie set by host is stored under and
// whether it is sent to that host only. Cookies for other sites and for
// public suffixes are refused.
func cookieDomain(host, attr string) (string, bool, bool) {
	domain := strings.TrimPrefix(strings.ToLower(attr), ".")
	if domain == "" || domain == host && net.ParseIP(host) != nil {
		return host, true, true
	}
	if net.ParseIP(host) != nil || !domainMatch(host, domain) {
		return "", false, false
	}
	if suffix, _ := publicsuffix.PublicSuffix(domain); suffix == domain {
		if domain == host {
			return host, true, true
		}
		return "", false, false
	}
	return domain, false, true
}

func sqlBool(b bool) int {
	if b {
		return 1
	}
	return 0
}

func domainMatch(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// defaultCookiePath is the directory of the request path.
func defaultCookiePath(requestPath string) string {
	i := strings.LastIndex(requestPath, "/")
	if i <= 0 {
		return "/"
	}
	return requestPath[:i]
}

func pathMatch(requestPath, cookiePath string) bool {
	if requestPath == cookiePath {
		return true
	}
	if !strings.HasPrefix(requestPath, cookiePath) {
		return false
	}
	return strings.HasSuffix(cookiePath, "/") || requestPath[len(cookiePath)] == '/'
}

// Len returns the number of stored cookies.
func (s *cookieStore) Len() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM cookies`).Scan(&n)
	return n, err
}

// Path returns the directory holding the cookie file.
func (s *cookieStore) Path() string {
	return s.dir
}

func (s *cookieStore) Close() error {
	dbErr := s.db.Close()
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("removing cookie directory: %w", err)
	}
	return dbErr
}
