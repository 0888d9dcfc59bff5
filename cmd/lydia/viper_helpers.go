package main

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func flagOrViperString(cmd *cobra.Command, flagName, viperKey string) string {
	v, _ := cmd.Flags().GetString(flagName)
	if cmd.Flags().Changed(flagName) {
		return v
	}
	if viperKey != "" && viper.IsSet(viperKey) {
		return viper.GetString(viperKey)
	}
	return v
}

func flagOrViperInt(cmd *cobra.Command, flagName, viperKey string) int {
	v, _ := cmd.Flags().GetInt(flagName)
	if cmd.Flags().Changed(flagName) {
		return v
	}
	if viperKey != "" && viper.IsSet(viperKey) {
		return viper.GetInt(viperKey)
	}
	return v
}

func flagOrViperDuration(cmd *cobra.Command, flagName, viperKey string) time.Duration {
	v, _ := cmd.Flags().GetDuration(flagName)
	if cmd.Flags().Changed(flagName) {
		return v
	}
	if viperKey != "" && viper.IsSet(viperKey) {
		return viper.GetDuration(viperKey)
	}
	return v
}
