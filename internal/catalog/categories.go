package catalog

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"storefront-catalog/internal/domain"
	"storefront-catalog/internal/textnorm"
)

// parentRank is the storefront menu order of the main categories, keyed by
// normalized name. Unlisted parents sort after them.
var parentRank = map[string]int{
	"havali el aletleri":                   1,
	"akulu montaj aletleri":                2,
	"elektrikli aletler":                   3,
	"sartlandirici":                        4,
	"makarali hortumlar":                   5,
	"sprial hava hortumlari":               6,
	"balancer":                             7,
	"akrobat - radyel - teleskobik kollar": 8,
}

const (
	unrankedParent = 999
	unrankedChild  = 999
	otherParent    = 1000
)

// rankedChildParent is the only parent whose children have a curated order.
const rankedChildParent = "havali el aletleri"

// childPatterns order the children of rankedChildParent. The first pattern
// contained in the normalized child name decides its rank.
var childPatterns = []string{
	"somun s",
	"circir",
	"pop",
	"somunlu",
	"matkap",
	"tork ayar",
	"tork kontroll",
	"orbital zimpara",
	"havali zimpara",
	"taslama",
	"filex",
	"pah",
	"kanca",
	"koli",
	"yazma",
	"kalafat",
	"ege",
	"testere",
	"yankeski",
	"dokumcu tokmagi",
	"kilavuz",
	"mikser",
	"gres",
}

type categoryRank struct {
	parent int
	child  int
}

func rankCategory(pair domain.CategoryPair) categoryRank {
	parent := textnorm.Normalize(pair.ParentCategory)
	r := categoryRank{parent: unrankedParent, child: otherParent}
	if rank, ok := parentRank[parent]; ok {
		r.parent = rank
	}
	if parent != rankedChildParent {
		return r
	}
	r.child = unrankedChild
	child := textnorm.Normalize(pair.ChildCategory)
	for i, pattern := range childPatterns {
		if strings.Contains(child, pattern) {
			r.child = i + 1
			break
		}
	}
	return r
}

// SortCategories orders pairs by the curated parent rank, then the curated
// child rank, then parent and child name.
func SortCategories(pairs []domain.CategoryPair) {
	ranks := make(map[domain.CategoryPair]categoryRank, len(pairs))
	for _, p := range pairs {
		ranks[p] = rankCategory(p)
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		a, b := pairs[i], pairs[j]
		ra, rb := ranks[a], ranks[b]
		switch {
		case ra.parent != rb.parent:
			return ra.parent < rb.parent
		case ra.child != rb.child:
			return ra.child < rb.child
		case a.ParentCategory != b.ParentCategory:
			return a.ParentCategory < b.ParentCategory
		default:
			return a.ChildCategory < b.ChildCategory
		}
	})
}

// tagLabels are the display labels of well-known tag keys.
var tagLabels = map[string]string{
	"popular":       "Popüler",
	"special_price": "Özel Fiyat",
	"new":           "Yeni",
	"bestseller":    "Çok Satan",
	"discount":      "İndirimli",
}

// CollectTags splits raw tag lists into distinct tags keyed by their lowercase
// form, keeping the first spelling seen, and sorts them by label in Turkish
// alphabetical order ignoring case.
func CollectTags(raw []string) []domain.Tag {
	seen := make(map[string]bool)
	tags := make([]domain.Tag, 0)
	for _, list := range raw {
		for _, tag := range domain.SplitTags(list) {
			key := textnorm.Lower(tag)
			if seen[key] {
				continue
			}
			seen[key] = true
			label, ok := tagLabels[key]
			if !ok {
				label = tag
			}
			tags = append(tags, domain.Tag{Key: key, Label: label})
		}
	}
	coll := collate.New(language.Turkish, collate.IgnoreCase)
	sort.SliceStable(tags, func(i, j int) bool {
		if c := coll.CompareString(tags[i].Label, tags[j].Label); c != 0 {
			return c < 0
		}
		return tags[i].Key < tags[j].Key
	})
	return tags
}
