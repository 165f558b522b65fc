package credstore

import "time"

// Session is the read view of the user session entries.
type Session struct {
	AccessToken  string
	RefreshToken string
	HQRole       string
	ClinicSlug   string
}

func (s Session) Authenticated() bool {
	return s.AccessToken != ""
}

// SupportSession is the read view of a support grant.
type SupportSession struct {
	Token      string
	ClinicSlug string
	ExpiresAt  time.Time
}

func (j *Jar) Session() Session {
	var s Session
	s.AccessToken, _ = j.Get(KeyAccessToken)
	s.RefreshToken, _ = j.Get(KeyRefreshToken)
	s.HQRole, _ = j.Get(KeyHQRole)
	s.ClinicSlug, _ = j.Get(KeyClinicSlug)

	return s
}

// SupportSession returns the support grant if it is active: its token is
// present and its expiry lies in the future.
func (j *Jar) SupportSession() (SupportSession, bool) {
	token, ok := j.Get(KeySupportToken)
	if !ok {
		return SupportSession{}, false
	}

	raw, ok := j.Get(KeySupportExpiresAt)
	if !ok {
		return SupportSession{}, false
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil || !j.now().Before(expiresAt) {
		return SupportSession{}, false
	}

	slug, _ := j.Get(KeySupportClinicSlug)

	return SupportSession{
		Token:      token,
		ClinicSlug: slug,
		ExpiresAt:  expiresAt,
	}, true
}

// SetSupport installs a support grant. All entries share the grant expiry.
func SetSupport(grant SupportSession) []Write {
	return []Write{
		SetUntil(KeySupportToken, grant.Token, grant.ExpiresAt),
		SetUntil(KeySupportClinicSlug, grant.ClinicSlug, grant.ExpiresAt),
		SetUntil(KeySupportExpiresAt, grant.ExpiresAt.Format(time.RFC3339Nano), grant.ExpiresAt),
	}
}
