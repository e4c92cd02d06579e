// Package notify delivers booking notifications.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const (
	embedColour = 0x00FF00
	testFee     = "£62.00 (Standard Car Test)"
)

type Embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	Timestamp   string       `json:"timestamp"`
	Fields      []EmbedField `json:"fields"`
	Footer      EmbedFooter  `json:"footer"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type EmbedFooter struct {
	Text string `json:"text"`
}

type Message struct {
	Content string  `json:"content"`
	Embeds  []Embed `json:"embeds"`
}

// Discord posts to a Discord webhook.
type Discord struct {
	url    string
	client *resty.Client
	log    zerolog.Logger
	now    func() time.Time
}

func NewDiscord(webhookURL string, log zerolog.Logger) *Discord {
	client := resty.New()
	client.SetTimeout(10 * time.Second)
	client.SetHeader("content-type", "application/json")
	return &Discord{url: webhookURL, client: client, log: log, now: time.Now}
}

// Notify never retries; a failed delivery is logged and reported as false.
func (d *Discord) Notify(ctx context.Context, details map[string]string, referenceURL string) bool {
	res, err := d.client.R().
		SetContext(ctx).
		SetBody(BuildMessage(details, referenceURL, d.now())).
		Post(d.url)
	if err != nil {
		d.log.Warn().Err(err).Msg("discord webhook")
		return false
	}
	if !res.IsSuccess() {
		d.log.Warn().Int("status", res.StatusCode()).Str("body", res.String()).Msg("discord webhook rejected")
		return false
	}
	return true
}

// BuildMessage renders booking details as a Discord embed.
func BuildMessage(details map[string]string, referenceURL string, now time.Time) Message {
	get := func(k string) string {
		if v := details[k]; v != "" {
			return v
		}
		return "unknown"
	}
	fields := []EmbedField{
		{Name: "📍 Test Centre", Value: get("centre"), Inline: true},
		{Name: "📅 Test Date", Value: get("date"), Inline: true},
		{Name: "🕐 Test Time", Value: get("time"), Inline: true},
		{Name: "💰 Test Fee", Value: testFee, Inline: true},
		{Name: "🔢 Slot ID", Value: get("slot_id"), Inline: true},
		{Name: "⏰ Time Remaining", Value: get("countdown"), Inline: true},
		{Name: "📋 Full Date & Time", Value: get("date_time")},
		{Name: "🔗 Execution Reference", Value: get("reference"), Inline: true},
		{Name: "⚡ Status", Value: "**RESERVED - PAYMENT PENDING**", Inline: true},
		{Name: "⚠️ CRITICAL REMINDER", Value: fmt.Sprintf("You have **%s** to complete payment or the slot will be released!", get("countdown"))},
	}
	if referenceURL != "" && referenceURL != "unknown" {
		fields = append(fields, EmbedField{
			Name:  "🔗 Complete Payment Now",
			Value: fmt.Sprintf("[Click here to complete payment](%s)", referenceURL),
		})
	}
	return Message{
		Content: "@everyone **DRIVING TEST RESERVED - PAYMENT REQUIRED NOW**",
		Embeds: []Embed{{
			Title:       "🎯 DRIVING TEST BOOKING CONFIRMED",
			Description: "**URGENT:** A driving test slot has been reserved. Complete payment immediately!",
			Color:       embedColour,
			Timestamp:   now.Format(time.RFC3339),
			Fields:      fields,
			Footer:      EmbedFooter{Text: "slotbot • " + now.Format("2006-01-02 15:04:05")},
		}},
	}
}
