package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
)

func userMessage(channelID, userID, content string) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{
		ChannelID: channelID,
		Content:   content,
		Author:    &discordgo.User{ID: userID},
	}}
}

func waitForWaiter(t *testing.T, b *Bot) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		b.mu.Lock()
		n := len(b.waiters)
		b.mu.Unlock()
		if n > 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("waiter never registered")
}

func TestAwaitReplyMatchesUserAndChannel(t *testing.T) {
	b := newTestBot(t)

	type result struct {
		msg *discordgo.Message
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		msg, err := b.awaitReply(context.Background(), "chan", "user", time.Second, func(c string) bool { return isDigits(c) })
		resCh <- result{msg, err}
	}()
	waitForWaiter(t, b)

	if b.deliverReply(userMessage("chan", "user", "abc")) {
		t.Error("non-matching content was consumed")
	}
	if b.deliverReply(userMessage("chan", "other", "3")) {
		t.Error("other user's message was consumed")
	}
	if b.deliverReply(userMessage("other-chan", "user", "3")) {
		t.Error("other channel's message was consumed")
	}
	if !b.deliverReply(userMessage("chan", "user", "3")) {
		t.Fatal("matching reply was not consumed")
	}

	res := <-resCh
	if res.err != nil {
		t.Fatalf("awaitReply() error: %v", res.err)
	}
	if res.msg.Content != "3" {
		t.Errorf("reply content = %q, want 3", res.msg.Content)
	}
	b.mu.Lock()
	if len(b.waiters) != 0 {
		t.Error("waiter not removed after delivery")
	}
	b.mu.Unlock()
}

func TestAwaitReplyTimeout(t *testing.T) {
	b := newTestBot(t)
	_, err := b.awaitReply(context.Background(), "chan", "user", 10*time.Millisecond, func(string) bool { return true })
	if !errors.Is(err, errTimeout) {
		t.Fatalf("awaitReply() error = %v, want errTimeout", err)
	}
	b.mu.Lock()
	if len(b.waiters) != 0 {
		t.Error("waiter not removed after timeout")
	}
	b.mu.Unlock()
}
