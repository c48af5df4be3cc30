package cmd

import (
	"time"

	"github.com/spf13/viper"

	"github.com/jake-scott/flair-bridge/internal/pkg/flairapi"
)

var _flairOpts struct {
	clientID     string
	clientSecret string
	apiRoot      string
	apiTimeout   time.Duration
}

// The Flair account flags are shared by every command that talks to the API
func init() {
	rootCmd.PersistentFlags().StringVar(&_flairOpts.clientID, "client-id", "", "Flair API client ID")
	rootCmd.PersistentFlags().StringVar(&_flairOpts.clientSecret, "client-secret", "", "Flair API client secret")
	rootCmd.PersistentFlags().StringVar(&_flairOpts.apiRoot, "api-root", flairapi.DefaultAPIRoot, "Flair API root URL")
	rootCmd.PersistentFlags().DurationVar(&_flairOpts.apiTimeout, "api-timeout", time.Second*15, "maximum duration of a Flair API call, eg. 1m or 10s")

	errPanic(viper.GetViper().BindPFlag("flair.client-id", rootCmd.PersistentFlags().Lookup("client-id")))
	errPanic(viper.GetViper().BindPFlag("flair.client-secret", rootCmd.PersistentFlags().Lookup("client-secret")))
	errPanic(viper.GetViper().BindPFlag("flair.api-root", rootCmd.PersistentFlags().Lookup("api-root")))
	errPanic(viper.GetViper().BindPFlag("flair.api-timeout", rootCmd.PersistentFlags().Lookup("api-timeout")))
}

func flairCredentials() flairapi.Credentials {
	return flairapi.Credentials{
		ClientID:     viper.GetString("flair.client-id"),
		ClientSecret: viper.GetString("flair.client-secret"),
	}
}

func flairClient(creds flairapi.Credentials) (*flairapi.Live, error) {
	api, err := flairapi.NewLiveClient(viper.GetString("flair.api-root"), creds)
	if err != nil {
		return nil, err
	}

	return api.WithTimeout(viper.GetDuration("flair.api-timeout")), nil
}
