package services

import (
	"math"
	"regexp"
	"strings"

	"neuro/internal/models"
)

// OccDefault is the occupation bucket for profiles we cannot classify.
const OccDefault = "Other"

var (
	occSoftware = regexp.MustCompile(`(software|swe|developer|engineer|full\s*stack|backend|frontend)`)
	occData     = regexp.MustCompile(`(data|ml|ai|analytics|scientist|bi|machine learning)`)
	occDesign   = regexp.MustCompile(`(design|ux|ui|product design)`)
	occProduct  = regexp.MustCompile(`(product\s*manager|pm|product\s*owner)`)
	occDevOps   = regexp.MustCompile(`(devops|infra|platform|site reliability|sre|cloud)`)
	occSecurity = regexp.MustCompile(`(security|infosec)`)
	occStudent  = regexp.MustCompile(`(student|intern)`)
	occFounder  = regexp.MustCompile(`(founder|ceo|cto|coo|startup)`)

	nonSlugChars  = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugSpaces    = regexp.MustCompile(`\s+`)
	slugDashes    = regexp.MustCompile(`-+`)
	nonTokenChars = regexp.MustCompile(`[^a-z0-9\s+.]`)
	occSplitters  = regexp.MustCompile(`[,/|•·\-]+`)
)

// kebabName derives a URL slug from a name, e.g. "Ana María" -> "ana-mara".
func kebabName(first, last, full string) string {
	base := strings.TrimSpace(full)
	if base == "" {
		base = strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
	}
	if base == "" {
		base = "user"
	}
	s := strings.ToLower(base)
	s = nonSlugChars.ReplaceAllString(s, "")
	s = slugSpaces.ReplaceAllString(s, "-")
	s = strings.Trim(slugDashes.ReplaceAllString(s, "-"), "-")
	if s == "" {
		return "user"
	}
	return s
}

// normalizeOcc maps a free-text occupation onto one of a handful of
// buckets, falling back to the capitalized input.
func normalizeOcc(s string) string {
	t := strings.TrimSpace(s)
	if t == "" {
		return OccDefault
	}
	low := strings.ToLower(t)
	switch {
	case occSoftware.MatchString(low):
		return "Software Engineer"
	case occData.MatchString(low):
		return "Data / AI"
	case occDesign.MatchString(low):
		return "Design"
	case occProduct.MatchString(low):
		return "Product"
	case occDevOps.MatchString(low):
		return "DevOps / Infra"
	case occSecurity.MatchString(low):
		return "Security"
	case occStudent.MatchString(low):
		return "Student / Intern"
	case occFounder.MatchString(low):
		return "Founder"
	}
	return strings.ToUpper(t[:1]) + t[1:]
}

func titleCase(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "_", " ")
	s = strings.ReplaceAll(s, "-", " ")
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// interestKeywords are scanned as substrings of headline+bio+occupation.
var interestKeywords = []string{
	"react", "next.js", "vue", "angular",
	"node", "express", "django", "flask",
	"python", "typescript", "javascript", "go", "rust", "java", "kotlin",
	"aws", "gcp", "azure", "kubernetes", "docker", "terraform",
	"postgres", "mysql", "mongodb", "redis",
	"ml", "ai", "llm", "pytorch", "tensorflow", "sklearn", "nlp",
	"figma", "ux", "ui",
	"security", "sre", "devops", "platform",
	"product", "pm",
}

// deriveInterests collects a profile's declared interest arrays, keyword
// hits from its prose fields, and as a last resort pieces of the raw
// occupation. Output is title-cased, deduped, capped at 40.
func deriveInterests(u *models.User) []string {
	var out []string
	push := func(arr []string) {
		for _, it := range arr {
			if s := strings.TrimSpace(it); s != "" {
				out = append(out, s)
			}
		}
	}
	push(u.Interests)
	push(u.Skills)
	push(u.Tags)
	push(u.Topics)

	txt := strings.ToLower(u.Headline + " " + u.Bio + " " + u.Occupation)
	for _, k := range interestKeywords {
		if strings.Contains(txt, k) {
			out = append(out, k)
		}
	}

	if len(out) == 0 && u.Occupation != "" {
		bits := occSplitters.Split(u.Occupation, -1)
		n := 0
		for _, b := range bits {
			if b = strings.TrimSpace(b); b != "" {
				out = append(out, b)
				if n++; n == 3 {
					break
				}
			}
		}
	}

	seen := map[string]bool{}
	deduped := make([]string, 0, len(out))
	for _, x := range out {
		tc := titleCase(x)
		if tc == "" || seen[tc] {
			continue
		}
		seen[tc] = true
		deduped = append(deduped, tc)
		if len(deduped) == 40 {
			break
		}
	}
	return deduped
}

// keywordHits scans page-length text for the interest vocabulary. Unlike
// the profile scan, hits must land on whole tokens; prose this long would
// substring-match every two-letter keyword.
func keywordHits(text string) []string {
	toks := map[string]bool{}
	for _, t := range tokenize(text) {
		toks[t] = true
		if trimmed := strings.Trim(t, "."); trimmed != t {
			toks[trimmed] = true
		}
	}

	var out []string
	seen := map[string]bool{}
	for _, k := range interestKeywords {
		if !toks[k] {
			continue
		}
		tc := titleCase(k)
		if seen[tc] {
			continue
		}
		seen[tc] = true
		out = append(out, tc)
	}
	return out
}

func tokenize(s string) []string {
	return strings.Fields(nonTokenChars.ReplaceAllString(strings.ToLower(s), " "))
}

// synonyms widen token matching so "k8s-adjacent" queries land on the
// right occupation buckets.
var synonyms = map[string][]string{
	"backend":  {"server", "api", "microservices", "distributed", "scalable", "rest", "grpc"},
	"frontend": {"react", "next", "ui", "ux", "javascript", "typescript"},
	"devops":   {"kubernetes", "docker", "terraform", "cicd", "sre", "platform", "infrastructure"},
	"data":     {"ml", "ai", "analytics", "etl", "pipeline", "pytorch", "tensorflow", "sklearn", "nlp"},
	"cloud":    {"aws", "gcp", "azure"},
	"product":  {"pm", "roadmap", "discovery", "requirements", "spec"},
	"security": {"infosec", "iam", "oauth", "owasp", "threat", "detection"},
}

func expandTokens(tokens []string) []string {
	out := map[string]bool{}
	for _, t := range tokens {
		out[t] = true
	}
	for _, t := range tokens {
		for k, vals := range synonyms {
			hit := t == k
			for _, v := range vals {
				if t == v {
					hit = true
					break
				}
			}
			if hit {
				out[k] = true
				for _, v := range vals {
					out[v] = true
				}
			}
		}
	}
	expanded := make([]string, 0, len(out))
	for t := range out {
		expanded = append(expanded, t)
	}
	return expanded
}

// scoreText scores target against query tokens: 2 points for an exact
// token hit, 1 for a substring overlap.
func scoreText(qtoks []string, target string) float64 {
	ttoks := expandTokens(tokenize(target))
	s := 0.0
	for _, q := range qtoks {
		exact := false
		for _, t := range ttoks {
			if q == t {
				exact = true
				break
			}
		}
		if exact {
			s += 2.0
			continue
		}
		for _, t := range ttoks {
			if strings.Contains(t, q) || strings.Contains(q, t) {
				s += 1.0
				break
			}
		}
	}
	return s
}

// InterestCount is one interest label with its frequency inside an
// occupation bucket.
type InterestCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// MatchResult is the outcome of matching a free-text query against the
// network's occupation buckets.
type MatchResult struct {
	Occupation string             `json:"occupation"`
	Interest   string             `json:"interest,omitempty"`
	Scores     map[string]float64 `json:"scores,omitempty"`
	Source     string             `json:"source"`
}

// localMatch scores every occupation bucket against the query and picks
// the best bucket plus its best interest. Interest weights grow with
// log2(1+count) so common interests in a bucket pull harder.
func localMatch(query, extra string, occs []string, interestsByOcc map[string][]InterestCount) *MatchResult {
	qt := expandTokens(tokenize(query + "\n" + extra))
	if len(qt) == 0 || len(occs) == 0 {
		return nil
	}

	bestOcc, bestOccScore := "", -1.0
	scores := make(map[string]float64, len(occs))
	for _, o := range occs {
		s := scoreText(qt, o)
		interests := interestsByOcc[o]
		if len(interests) > 24 {
			interests = interests[:24]
		}
		for _, it := range interests {
			w := math.Log2(1 + float64(it.Count))
			if w < 1.0 {
				w = 1.0
			}
			s += scoreText(qt, it.Label) * w
		}
		scores[o] = s
		if s > bestOccScore {
			bestOccScore, bestOcc = s, o
		}
	}
	if bestOcc == "" {
		return nil
	}

	bestInterest, bestInterestScore := "", -1.0
	for _, it := range interestsByOcc[bestOcc] {
		w := math.Log2(1 + float64(it.Count))
		if w < 1.0 {
			w = 1.0
		}
		if s := scoreText(qt, it.Label) * w; s > bestInterestScore {
			bestInterestScore, bestInterest = s, it.Label
		}
	}

	return &MatchResult{
		Occupation: bestOcc,
		Interest:   bestInterest,
		Scores:     scores,
		Source:     "local",
	}
}
