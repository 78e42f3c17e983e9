package sanitize

import "regexp"

const redactedMarker = "[REDACTED]"

// sensitivePatterns covers the credential and PII shapes that must never
// reach a prompt or a response: emails, phone numbers, IPv4/IPv6, MAC
// addresses, cloud key ids, Slack tokens and webhooks, generic credential
// assignments, private key blocks, and card-shaped digit runs.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
	regexp.MustCompile(`\b(?:\+?\d{1,3}[\s-]?)?(?:\(?\d{2,4}\)?[\s-]?)?\d{3,4}[\s-]?\d{4}\b`),
	regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
	regexp.MustCompile(`\b([0-9a-fA-F]{1,4}:){7}[0-9a-fA-F]{1,4}\b`),
	regexp.MustCompile(`\b(?:[0-9A-Fa-f]{2}:){5}[0-9A-Fa-f]{2}\b`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	regexp.MustCompile(`ASIA[0-9A-Z]{16}`),
	regexp.MustCompile(`(?i)aws_secret_access_key\s*=\s*[A-Za-z0-9/+=]{40}`),
	regexp.MustCompile(`xox[baprs]-[A-Za-z0-9-]{10,48}`),
	regexp.MustCompile(`https://hooks\.slack\.com/services/[A-Za-z0-9/_-]+`),
	regexp.MustCompile(`(?i)(?:api[_-]?key|secret|password|token|bearer|jwt)[^\n]{0,50}`),
	regexp.MustCompile(`-----BEGIN (?:RSA|DSA|EC|OPENSSH) PRIVATE KEY-----[\s\S]+?-----END .* PRIVATE KEY-----`),
	regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`),
}

// Redactor replaces every recognized sensitive pattern with a fixed marker.
// It runs on chunk text before scoring and on generated answers before they
// leave the service.
type Redactor struct{}

func NewRedactor() *Redactor {
	return &Redactor{}
}

func (*Redactor) Scrub(text string) string {
	for _, pattern := range sensitivePatterns {
		text = pattern.ReplaceAllString(text, redactedMarker)
	}
	return text
}
