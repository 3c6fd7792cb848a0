package canonical

// Similarity returns a normalized [0,1] similarity between two strings,
// computed as the Jaccard similarity of their trigram shingle sets over
// the fuzzy-normalized forms. Used only for duplicate search.
func Similarity(a, b string) float64 {
	na := NormalizeName(a)
	nb := NormalizeName(b)
	if na == "" && nb == "" {
		return 0.0
	}
	if na == nb {
		return 1.0
	}
	return JaccardSimilarity(Shingles(na), Shingles(nb))
}

// Shingles creates 3-gram shingles from a normalized name.
func Shingles(normalized string) []string {
	cleaned := ""
	for _, r := range normalized {
		if r != ' ' {
			cleaned += string(r)
		}
	}
	if len(cleaned) < 3 {
		if cleaned == "" {
			return []string{}
		}
		return []string{cleaned}
	}

	shingleSet := make([]string, 0, len(cleaned)-2)
	for i := 0; i < len(cleaned)-2; i++ {
		shingleSet = append(shingleSet, cleaned[i:i+3])
	}
	return shingleSet
}

// JaccardSimilarity returns the Jaccard similarity between two shingle sets.
func JaccardSimilarity(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	setA := make(map[string]bool)
	for _, s := range a {
		setA[s] = true
	}

	setB := make(map[string]bool)
	for _, s := range b {
		setB[s] = true
	}

	intersection := 0
	for s := range setA {
		if setB[s] {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0.0
	}

	return float64(intersection) / float64(union)
}
