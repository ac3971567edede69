// watch joins a group as a member and prints live bucket-list events.
//
//	go run ./cmd/watch --server http://localhost:8080 --group <id> --name Ana
//	go run ./cmd/watch --server http://localhost:8080 --group <id> --member <id> --add "Swim"
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/NolanKnievel/bucket-list-sub001/internal/client"
	"github.com/NolanKnievel/bucket-list-sub001/internal/domain"
	"github.com/NolanKnievel/bucket-list-sub001/internal/protocol"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "server base URL")
	group := flag.String("group", "", "group id")
	member := flag.String("member", "", "existing member id")
	name := flag.String("name", "", "join the group under this name when --member is empty")
	add := flag.String("add", "", "add an item with this title once connected")
	attempts := flag.Int("max-attempts", 10, "reconnect attempts before giving up")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})

	if *group == "" || (*member == "" && *name == "") {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := client.NewAPI(*server, client.WithTimeout(10*time.Second))
	groupID := domain.GroupID(*group)
	memberID := domain.MemberID(*member)
	if memberID == "" {
		m, err := api.JoinGroup(ctx, groupID, *name)
		if err != nil {
			log.Fatal().Err(err).Msg("join group")
		}
		memberID = m.ID
		log.Info().Str("member", string(memberID)).Msg("joined")
	}

	snap, err := api.Snapshot(ctx, groupID)
	if err != nil {
		log.Fatal().Err(err).Msg("load group")
	}
	log.Info().Str("group", snap.Group.Name).Int("members", len(snap.Members)).Int("items", len(snap.Items)).Msg("snapshot")
	for _, it := range snap.Items {
		log.Info().Str("item", string(it.ID)).Bool("completed", it.Completed).Msg(it.Title)
	}

	m := client.NewManager(client.Options{
		Dialer:      client.WSDialer{BaseURL: *server},
		MaxAttempts: *attempts,
	})
	defer m.Close()

	failed := make(chan struct{})
	m.OnStateChange(func(sc client.StateChange) {
		if sc.To == client.Failed {
			close(failed)
		}
	})
	m.OnMemberJoined(func(mem domain.Member) {
		log.Info().Str("member", string(mem.ID)).Msg(mem.Name + " joined")
	})
	m.OnItemAdded(func(p protocol.ItemAdded) {
		log.Info().Str("item", string(p.Item.ID)).Str("by", string(p.Item.MemberID)).Msg("added: " + p.Item.Title)
	})
	m.OnItemUpdated(func(p protocol.ItemUpdated) {
		log.Info().Str("item", string(p.ItemID)).Bool("completed", p.Completed).Msg("updated")
	})
	m.OnError(func(e *client.Error) {
		log.Warn().Str("kind", string(e.Kind)).Str("code", e.Code).Msg(e.Message)
	})

	m.Connect(groupID, memberID)
	if *add != "" {
		if err := m.AddItem(protocol.ItemInput{Title: *add}); err != nil {
			log.Error().Err(err).Msg("add item")
		}
	}

	select {
	case <-ctx.Done():
		if dropped := m.Disconnect(); len(dropped) > 0 {
			log.Warn().Int("actions", len(dropped)).Msg("unsent actions dropped")
		}
	case <-failed:
		log.Error().Msg("connection failed")
		m.Close()
		os.Exit(1)
	}
}
