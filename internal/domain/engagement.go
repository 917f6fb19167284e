package domain

import (
	"fmt"
	"strings"
)

// Category - тип трансляции, к которой привязана комната
type Category string

const (
	CategorySlide   Category = "SLIDE"
	CategoryChannel Category = "CHANNEL"
)

func ParseCategory(s string) (Category, error) {
	switch Category(strings.ToUpper(strings.TrimSpace(s))) {
	case CategorySlide:
		return CategorySlide, nil
	case CategoryChannel:
		return CategoryChannel, nil
	default:
		return "", fmt.Errorf("unknown category %q", s)
	}
}

// EngagementKind - одна из двух параллельных веток общения
type EngagementKind string

const (
	KindComment EngagementKind = "COMMENT"
	KindQAndA   EngagementKind = "Q_AND_A"
)

func ParseEngagementKind(s string) (EngagementKind, error) {
	switch EngagementKind(strings.ToUpper(strings.TrimSpace(s))) {
	case KindComment:
		return KindComment, nil
	case KindQAndA:
		return KindQAndA, nil
	default:
		return "", fmt.Errorf("unknown engagement kind %q", s)
	}
}

// RoomKey однозначно определяет комнату: (code, category)
type RoomKey struct {
	Code     string   `json:"code"`
	Category Category `json:"category"`
}

func NewRoomKey(code string, category Category) RoomKey {
	return RoomKey{Code: code, Category: category}
}

func (k RoomKey) String() string {
	return string(k.Category) + ":" + k.Code
}

func (k RoomKey) Valid() bool {
	return k.Code != "" && (k.Category == CategorySlide || k.Category == CategoryChannel)
}
