package classify

import "github.com/abelbrown/newswire/internal/config"

// DefaultMajorKeywords is the stock major-news keyword set used when the
// config file does not provide one.
var DefaultMajorKeywords = []string{
	"breaking", "urgent", "election", "war", "ceasefire", "attack",
	"missile", "killed", "dead", "explosion", "earthquake", "flood",
	"hurricane", "wildfire", "sanction", "supreme court", "white house",
	"fed", "interest rate", "inflation", "recession", "bankruptcy",
	"merger", "acquisition", "ipo", "earnings", "tariff", "taiwan",
	"south china sea", "israel", "gaza", "hamas", "ukraine", "russia",
	"putin", "zelensky", "kyiv", "moscow", "eu", "europe", "ecb",
	"greenland", "asean", "philippines", "myanmar", "sudan", "congo",
	"乌克兰", "俄罗斯", "习近平", "巴以冲突", "格陵兰", "东南亚",
}

// DefaultTopicRules group headlines for digests; first match wins.
var DefaultTopicRules = []config.TopicRule{
	{
		Name: "War & Conflict",
		Keywords: []string{
			"ceasefire", "airstrike", "attack", "missile", "drone",
			"shelling", "bombing", "hostage", "gaza war", "israel-hamas",
			"ukraine war", "russia-ukraine", "russian invasion",
			"俄乌", "停火", "空袭", "导弹", "袭击", "军事行动",
		},
	},
	{
		Name: "US Politics",
		Keywords: []string{
			"trump", "biden", "white house", "supreme court", "congress",
			"senate", "election",
		},
	},
	{
		Name: "China & Asia-Pacific",
		Keywords: []string{
			"china", "xi", "taiwan", "south china sea", "philippines",
			"asean", "japan",
		},
	},
	{
		Name: "Economy & Markets",
		Keywords: []string{
			"fed", "inflation", "interest rate", "recession", "tariff",
			"earnings", "ipo", "bank",
		},
	},
	{
		Name: "Disasters & Accidents",
		Keywords: []string{
			"earthquake", "flood", "hurricane", "wildfire", "explosion",
			"crash",
		},
	},
	{
		Name: "Tech & Industry",
		Keywords: []string{
			"ai", "chip", "semiconductor", "apple", "google", "meta",
			"openai", "tesla",
		},
	},
}

// DefaultWatchlist marks stories that bypass major-only filtering even
// when no major keyword hits.
var DefaultWatchlist = []string{
	"iran", "iranian", "tehran", "irgc", "revolutionary guard",
	"persian gulf", "hormuz", "伊朗", "德黑兰",
}

// DefaultExemptTopic is the topic whose articles are always delivered.
const DefaultExemptTopic = "War & Conflict"

// ApplyDefaults fills empty classifier config fields with the stock tables.
func ApplyDefaults(cfg *config.ClassifierConfig) {
	if len(cfg.MajorKeywords) == 0 {
		cfg.MajorKeywords = DefaultMajorKeywords
	}
	if len(cfg.Topics) == 0 {
		cfg.Topics = DefaultTopicRules
	}
	if len(cfg.Watchlist) == 0 {
		cfg.Watchlist = DefaultWatchlist
	}
	if cfg.ExemptTopic == "" {
		cfg.ExemptTopic = DefaultExemptTopic
	}
}
