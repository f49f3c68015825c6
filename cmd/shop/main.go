package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"shopfront/internal/cart"
	"shopfront/internal/logger"
	"shopfront/internal/storefront"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "shop",
		Short:         "Browse the catalogue, keep a cart and check out",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	home, _ := os.UserHomeDir()
	cmd.PersistentFlags().String("api", "http://localhost:8080", "shop API base URL")
	cmd.PersistentFlags().String("home", filepath.Join(home, ".shopfront"), "directory for the cart and session")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "log debug output")
	viper.BindPFlag("SHOP_API_URL", cmd.PersistentFlags().Lookup("api"))
	viper.BindPFlag("SHOP_HOME", cmd.PersistentFlags().Lookup("home"))
	viper.BindPFlag("SHOP_VERBOSE", cmd.PersistentFlags().Lookup("verbose"))

	cmd.AddCommand(loginCmd())
	cmd.AddCommand(logoutCmd())
	cmd.AddCommand(productsCmd())
	cmd.AddCommand(cartCmd())
	cmd.AddCommand(checkoutCmd())
	cmd.AddCommand(orderCmd())

	return cmd
}

// app holds the local state and API client shared by every command
type app struct {
	out      io.Writer
	logger   *zap.Logger
	cart     *cart.Cart
	sessions *storefront.SessionStore
	session  *storefront.Session
	client   *storefront.Client
}

func newApp(cmd *cobra.Command) (*app, error) {
	// A missing .env is fine; flags and the environment may carry everything
	_ = godotenv.Load()
	viper.AutomaticEnv()

	level := zapcore.WarnLevel
	if viper.GetBool("SHOP_VERBOSE") {
		level = zapcore.DebugLevel
	}
	log := logger.NewWithWriter(zapcore.Lock(os.Stderr), level)

	home := viper.GetString("SHOP_HOME")
	c, err := cart.Open(cart.NewFileStore(filepath.Join(home, "cart.json")), log)
	if err != nil {
		return nil, err
	}

	sessions := storefront.NewSessionStore(filepath.Join(home, "session.json"))
	session, err := sessions.Load()
	if err != nil {
		log.Warn("Ignoring unreadable session", zap.Error(err))
		session = nil
	}

	opts := []storefront.Option{storefront.WithLogger(log)}
	if session != nil {
		opts = append(opts, storefront.WithToken(session.Token))
	}

	return &app{
		out:      cmd.OutOrStdout(),
		logger:   log,
		cart:     c,
		sessions: sessions,
		session:  session,
		client:   storefront.NewClient(viper.GetString("SHOP_API_URL"), opts...),
	}, nil
}

func (a *app) close() {
	a.logger.Sync()
}
