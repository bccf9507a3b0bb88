package main

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	stdos "os"
	"strings"

	"github.com/liveclass/liveclass/pkg/api"
	"github.com/liveclass/liveclass/pkg/client"
	"github.com/liveclass/liveclass/pkg/com"
	"github.com/liveclass/liveclass/pkg/config"
	"github.com/liveclass/liveclass/pkg/logger"
	"github.com/liveclass/liveclass/pkg/os"
	"github.com/spf13/pflag"
)

var Version = "?"

func main() {
	session := pflag.String("session", "", "session id to join")
	token := pflag.String("token", stdos.Getenv("LIVECLASS_TOKEN"), "platform auth token")

	var conf config.Config
	if err := conf.ParseFlags(); err != nil {
		panic(err)
	}
	log := logger.New(conf.Debug, "cl")
	log.Info().Msgf("version %s", Version)
	if *session == "" || *token == "" {
		log.Fatal().Msg("--session and --token are required")
	}

	scheme, httpScheme := "ws", "http"
	if conf.Client.Secure {
		scheme, httpScheme = "wss", "https"
	}
	dial := func() (client.Signaling, error) {
		return com.NewClient(url.URL{Scheme: scheme, Host: conf.Client.GatewayAddress, Path: "/ws"}, log)
	}
	capture, err := client.NewDeviceCapture(log)
	if err != nil {
		log.Fatal().Err(err).Msg("capture")
	}
	creds := client.NewCredentials(fmt.Sprintf("%s://%s", httpScheme, conf.Client.GatewayAddress), *token)

	o := client.New(conf.Client, *token, dial, capture, client.NewLiveKitRoom(log), creds, events(log), log)
	if err := o.Join(context.Background(), *session); err != nil {
		log.Fatal().Err(err).Msg("join")
	}
	log.Info().Msgf("joined %s; type to chat, /quit to leave", *session)

	go readInput(o, log)
	<-os.ExpectTermination()
	o.Leave()
}

func events(log *logger.Logger) client.Events {
	return client.Events{
		OnState: func(s client.SessionState) { log.Info().Msgf("state: %v", s) },
		OnChat: func(b api.ChatBroadcast) {
			fmt.Printf("[%s] %s: %s\n", b.Timestamp, b.UserFullName, b.Message)
		},
		OnUserJoined: func(ev api.UserJoinedEvent) {
			log.Info().Msgf("%s joined", ev.Participant.FullName)
		},
		OnUserLeft: func(ev api.UserLeftEvent) { log.Info().Msgf("%s left", ev.UserID) },
		OnScreenShare: func(ev api.ScreenShareEvent) {
			log.Info().Msgf("%s sharing=%v", ev.UserID, ev.IsSharing)
		},
		OnStream:        func(st *client.Stream) { log.Info().Msgf("stream up: %+v", st.Key) },
		OnStreamRemoved: func(key client.StreamKey) { log.Info().Msgf("stream down: %+v", key) },
		OnFatal:         func(msg string) { log.Error().Msgf("session ended: %s", msg) },
	}
}

func readInput(o *client.Orchestrator, log *logger.Logger) {
	sc := bufio.NewScanner(stdos.Stdin)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
		case line == "/quit":
			o.Leave()
			stdos.Exit(0)
		case line == "/mute":
			o.ToggleAudio(false)
		case line == "/unmute":
			o.ToggleAudio(true)
		case line == "/share":
			if err := o.StartScreenShare(context.Background()); err != nil {
				log.Error().Err(err).Msg("screen share")
			}
		case line == "/noshare":
			o.StopScreenShare()
		case line == "/who":
			if reply, err := o.RequestParticipants(); err == nil {
				for _, p := range reply.Participants {
					fmt.Printf("  %s (%s) online=%v\n", p.FullName, p.Role, p.Online)
				}
			}
		default:
			o.SendChat(line)
		}
	}
}
