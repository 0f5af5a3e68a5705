package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/bus"
	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/config"
	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/convo"
	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/dispatch"
	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/gateway"
	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/handlers"
	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/httpd"
	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/journal"
	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/registry"
	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/store"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the Slack bot gateway",
	Run:   runGateway,
}

func runGateway(cmd *cobra.Command, args []string) {
	printHeader("🌐 buttonbot Gateway")
	fmt.Println("Starting buttonbot Gateway...")

	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Config error: %v\n", err)
		os.Exit(1)
	}

	// 2. Open team storage
	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		fmt.Printf("Storage error: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	// 3. Setup Bus
	msgBus := bus.NewMessageBus()

	// 4. Setup Journal (optional)
	var jnl *journal.Journal
	if cfg.Journal.Enabled() {
		jnl = journal.New(cfg.Journal.Brokers, cfg.Journal.Topic)
		defer jnl.Close()
		fmt.Printf("📡 Event journal enabled (topic %s)\n", cfg.Journal.Topic)
	}

	// 5. Setup session registry and conversations
	reg := registry.New()
	alive := func(token string) bool {
		s, ok := reg.Lookup(token)
		return ok && s.Alive()
	}
	convos := convo.NewEngine(msgBus, cfg.Conversation.Timeout, alive)

	// 6. Setup command dispatch
	commands := dispatch.NewCommandDispatcher()
	callbacks := dispatch.NewCallbackRouter()
	builtins := handlers.New(msgBus, st, reg)
	if err := builtins.Register(commands, callbacks); err != nil {
		fmt.Printf("Handler registration error: %v\n", err)
		os.Exit(1)
	}

	// 7. Setup Connection Manager
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var policy gateway.ReconnectPolicy = gateway.NoReconnect{}
	if cfg.Reconnect.Enabled {
		policy = gateway.Backoff{
			Initial:     cfg.Reconnect.InitialDelay,
			Max:         cfg.Reconnect.MaxDelay,
			MaxAttempts: cfg.Reconnect.MaxAttempts,
		}
		fmt.Println("🔁 Reconnect enabled")
	}
	mgr := gateway.NewManager(gateway.ManagerConfig{
		Registry:      reg,
		Store:         st,
		Bus:           msgBus,
		Conversations: convos,
		Journal:       jnl,
		Dialer:        &gateway.SlackDialer{},
		Policy:        policy,
		BaseContext:   ctx,
	})

	// 8. Start everything

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go msgBus.DispatchOutbound(ctx)
	go convos.Run(ctx)
	responder := httpd.NewWebhookResponder(msgBus, &http.Client{Timeout: 10 * time.Second})
	go func() {
		if err := mgr.RunDispatch(ctx, commands, callbacks, responder); err != nil && !errors.Is(err, context.Canceled) {
			fmt.Printf("Dispatch stopped: %v\n", err)
		}
	}()

	// 9. Bring stored teams online
	connected, err := mgr.Reconcile(ctx)
	if err != nil {
		fmt.Printf("Team reconciliation error: %v\n", err)
	} else {
		fmt.Printf("🤖 %d team(s) connected\n", connected)
	}
	connectSeedTeam(ctx, cfg, st, mgr)

	// 10. HTTP front door (authorization flow + interactive webhook)
	srv := httpd.New(*cfg, st, reg, msgBus, mgr)
	go func() {
		if err := srv.Run(ctx); err != nil {
			fmt.Printf("HTTP server error: %v\n", err)
			cancel()
		}
	}()
	fmt.Printf("📡 Listening on :%d (visit /login to authorize a team)\n", cfg.HTTP.Port)

	<-sigChan
	fmt.Println("Shutting down...")
	cancel()
	for _, token := range reg.Tokens() {
		mgr.Teardown(token)
	}
	time.Sleep(500 * time.Millisecond)
}

// connectSeedTeam connects the configured home team token when it is not in
// storage yet, then persists the identity learned during the handshake.
func connectSeedTeam(ctx context.Context, cfg *config.Config, st *store.Store, mgr *gateway.Manager) {
	token := cfg.Slack.Token
	if token == "" {
		return
	}
	if _, err := st.GetTeamByToken(token); err == nil {
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		fmt.Printf("Seed team lookup error: %v\n", err)
		return
	}

	handle, err := mgr.SpawnAndConnect(ctx, store.Team{BotToken: token})
	if err != nil {
		fmt.Printf("Seed team connect error: %v\n", err)
		return
	}
	now := time.Now()
	err = st.SaveTeam(store.Team{
		ID:          handle.TeamID(),
		Name:        handle.TeamName(),
		BotToken:    token,
		BotUserID:   handle.Identity().UserID,
		BotUserName: handle.Identity().Name,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		fmt.Printf("Seed team save error: %v\n", err)
	}
}
