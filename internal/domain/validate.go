package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxTopicLength bounds the topic in runes.
const MaxTopicLength = 255

// FieldError describes a rejected field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NormalizeTopic trims the topic and checks it is non-empty and bounded.
func NormalizeTopic(topic string) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", &FieldError{Field: "topic", Message: "required"}
	}
	if utf8.RuneCountInString(topic) > MaxTopicLength {
		return "", &FieldError{Field: "topic", Message: fmt.Sprintf("must be at most %d characters", MaxTopicLength)}
	}
	return topic, nil
}

// Normalize returns a trimmed copy of the input, rejecting an empty topic or an
// unknown priority.
func (in TicketInput) Normalize() (TicketInput, error) {
	topic, err := NormalizeTopic(in.Topic)
	if err != nil {
		return TicketInput{}, err
	}
	priority, err := ParsePriority(string(in.Priority))
	if err != nil {
		return TicketInput{}, &FieldError{Field: "priority", Message: err.Error()}
	}
	return TicketInput{
		Topic:       topic,
		Description: strings.TrimSpace(in.Description),
		Priority:    priority,
		Tags:        NormalizeTags(in.Tags),
	}, nil
}

// Normalize validates and trims the set fields of the patch. A set response
// must not be blank.
func (p TicketPatch) Normalize() (TicketPatch, error) {
	out := p
	if p.Topic != nil {
		topic, err := NormalizeTopic(*p.Topic)
		if err != nil {
			return TicketPatch{}, err
		}
		out.Topic = &topic
	}
	if p.Description != nil {
		desc := strings.TrimSpace(*p.Description)
		out.Description = &desc
	}
	if p.Priority != nil {
		priority, err := ParsePriority(string(*p.Priority))
		if err != nil {
			return TicketPatch{}, &FieldError{Field: "priority", Message: err.Error()}
		}
		out.Priority = &priority
	}
	if p.Status != nil && !p.Status.Valid() {
		return TicketPatch{}, &FieldError{Field: "status", Message: fmt.Sprintf("unknown status %q", *p.Status)}
	}
	if p.Tags != nil {
		tags := NormalizeTags(*p.Tags)
		out.Tags = &tags
	}
	if p.Response != nil {
		text, err := NormalizeResponse(*p.Response)
		if err != nil {
			return TicketPatch{}, err
		}
		out.Response = &text
	}
	return out, nil
}

// NormalizeResponse trims staff response text and rejects it when empty.
func NormalizeResponse(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &FieldError{Field: "response", Message: "required"}
	}
	return text, nil
}
