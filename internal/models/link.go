package models

import (
	"time"
)

// Link хранимая запись короткой ссылки
type Link struct {
	ID          int64      `json:"id"`
	Code        string     `json:"code"`
	URL         string     `json:"url"`
	Clicks      int64      `json:"clicks"`
	CreatedAt   time.Time  `json:"created_at"`
	LastClicked *time.Time `json:"last_clicked,omitempty"`
}

type CreateLinkInput struct {
	URL  string
	Code *string
}

// LinkSummary публичное представление ссылки, без внутреннего ID
type LinkSummary struct {
	Code        string     `json:"code"`
	URL         string     `json:"url"`
	Clicks      int64      `json:"clicks"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastClicked *time.Time `json:"lastClicked"`
}

func (l *Link) Summary() LinkSummary {
	return LinkSummary{
		Code:        l.Code,
		URL:         l.URL,
		Clicks:      l.Clicks,
		CreatedAt:   l.CreatedAt,
		LastClicked: l.LastClicked,
	}
}
