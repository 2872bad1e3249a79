package main

import "github.com/wippyai/featurize/label"

// user is the context a recommendation is made in.
type user struct {
	ID        string   `json:"id" vw:"id"`
	Segment   string   `json:"segment" vw:"segment"`
	Interests []string `json:"interests" vw:"interests"`
	Age       int      `json:"age" vw:"age,omitempty"`
}

// article is one candidate action.
type article struct {
	Scores map[string]float64 `json:"scores" vw:"scores"`
	ID     string             `json:"id" vw:"id"`
	Topic  string             `json:"topic" vw:"topic"`
	Tags   []string           `json:"tags" vw:"tags"`
	Length float64            `json:"length" vw:"length"`
}

// decision is serialized as one shared example followed by one example per article.
type decision struct {
	User     user      `json:"user" vw:"user,ns=u"`
	Articles []article `json:"articles" vw:"_multi"`
	Hour     int       `json:"hour" vw:"hour,ns=ctx"`
	Mobile   bool      `json:"mobile" vw:"mobile,ns=ctx"`
}

// outcome is the logged result of a decision.
type outcome struct {
	Chosen      int     `json:"chosen"`
	Cost        float32 `json:"cost"`
	Probability float32 `json:"probability"`
}

func (o outcome) label() label.Label {
	return label.ContextualBandit{
		Action:      uint32(o.Chosen + 1),
		Cost:        o.Cost,
		Probability: o.Probability,
	}
}

// record is one input line.
type record struct {
	Outcome  *outcome `json:"outcome,omitempty"`
	Decision decision `json:"decision"`
}
