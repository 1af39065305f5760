// Command smoketest drives a running broker through the session-routing
// scenario and the end-to-end encryption handshake, printing what each
// client observes.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/topicrelay/backend/internal/client"
	"github.com/topicrelay/backend/internal/crypto"
	"github.com/topicrelay/backend/internal/protocol"
)

const (
	topicDetect       = "DetectCustomerEvent"
	topicConnected    = "NetworkConnectedEvent"
	topicRegistration = "RegistrationCompleteEvent"
)

var (
	serverURL string
	token     string
	settle    time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "smoketest",
	Short: "Exercise a running topic relay",
	Long: `smoketest connects several clients to a running broker and checks that
messages published in one session never reach subscribers of another.`,
	SilenceUsage: true,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Four clients in two sessions publish on three topics",
	RunE:  runSessions,
}

var encryptionCmd = &cobra.Command{
	Use:   "encryption",
	Short: "Fetch the server public key, derive a shared secret and round-trip a sealed message",
	RunE:  runEncryption,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", "http://127.0.0.1:8081", "broker base URL")
	sessionsCmd.Flags().StringVar(&token, "token", "", "token for the first client (optional)")
	sessionsCmd.Flags().DurationVar(&settle, "settle", 500*time.Millisecond, "time to wait for deliveries")
	rootCmd.AddCommand(sessionsCmd, encryptionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func wsURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/ws"
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/ws"
	}
	return base
}

type participant struct {
	name    string
	session string
	topics  []string
	paint   *color.Color
}

func runSessions(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	participants := []participant{
		{"Client1", "session-A", []string{topicDetect, topicConnected}, color.New(color.FgCyan)},
		{"Client2", "session-A", []string{topicDetect, topicRegistration}, color.New(color.FgGreen)},
		{"Client3", "session-B", []string{topicDetect, topicConnected}, color.New(color.FgYellow)},
		{"Client4", "session-B", []string{topicRegistration, topicConnected}, color.New(color.FgMagenta)},
	}

	fmt.Println("[test] connecting clients...")
	var (
		mu       sync.Mutex
		received = make(map[string][]protocol.Envelope)
		clients  = make([]*client.Client, len(participants))
	)
	for i, p := range participants {
		var opts []client.Option
		if i == 0 && token != "" {
			opts = append(opts, client.WithToken(token))
		}
		c, err := client.DialSession(ctx, wsURL(serverURL), p.name, p.session, opts...)
		if err != nil {
			return fmt.Errorf("%s: %w", p.name, err)
		}
		defer c.Close()
		clients[i] = c

		for _, topic := range p.topics {
			c.OnMessage(topic, func(env protocol.Envelope) {
				p.paint.Printf("[%s:%s] <= %s from %s: %s\n", p.name, p.session, env.Topic, env.PublisherName, env.Payload)
				mu.Lock()
				received[p.name] = append(received[p.name], env)
				mu.Unlock()
			})
		}
	}

	fmt.Println("[test] subscribing...")
	for i, p := range participants {
		for _, topic := range p.topics {
			if err := clients[i].Subscribe(topic); err != nil {
				return fmt.Errorf("%s subscribe %s: %w", p.name, topic, err)
			}
		}
		if err := clients[i].Ping(ctx); err != nil {
			return fmt.Errorf("%s ping: %w", p.name, err)
		}
	}

	fmt.Println("[test] publishing...")
	publishes := []struct {
		from    int
		topic   string
		payload string
	}{
		{0, topicRegistration, "Registration complete from session A"},
		{1, topicConnected, "Network connected in session A"},
		{2, topicDetect, "Customer detected in session B"},
		{3, topicRegistration, "Registration complete from session B"},
	}
	for _, pub := range publishes {
		if err := clients[pub.from].Publish(pub.topic, pub.payload); err != nil {
			color.Red("[%s] publish failed: %v", participants[pub.from].name, err)
		}
	}

	time.Sleep(settle)

	mu.Lock()
	defer mu.Unlock()
	leaks := 0
	for _, p := range participants {
		for _, env := range received[p.name] {
			if env.SessionID != p.session {
				leaks++
				color.Red("[%s] received %s from session %s", p.name, env.Topic, env.SessionID)
			}
		}
	}
	if leaks > 0 {
		return fmt.Errorf("%d cross-session deliveries", leaks)
	}
	color.Green("[test] complete: every delivery stayed within its session")
	return nil
}

func runEncryption(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(serverURL, "/")+"/enc/public-key", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch public key: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch public key: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return err
	}
	serverKey := strings.TrimSpace(string(body))

	keyType, err := crypto.ParseKeyType(resp.Header.Get("X-Key-Type"))
	if err != nil {
		keyType = crypto.KeyTypeP256
	}
	fmt.Printf("server %s public key: %s...\n", keyType, serverKey[:min(20, len(serverKey))])

	keys, err := crypto.GenerateKeyPair(keyType)
	if err != nil {
		return err
	}
	secret, err := keys.SharedSecret(serverKey)
	if err != nil {
		return fmt.Errorf("derive shared secret: %w", err)
	}

	message := fmt.Sprintf(`{"text":"Hello, secure world!","timestamp":%q}`, time.Now().UTC().Format(time.RFC3339Nano))
	sealed, err := crypto.Seal([]byte(message), secret)
	if err != nil {
		return err
	}
	opened, err := crypto.Open(sealed, secret)
	if err != nil {
		return err
	}
	if string(opened) != message {
		return fmt.Errorf("round trip mismatch")
	}
	color.Green("sealed %d bytes, opened: %s", len(sealed), opened)
	return nil
}
