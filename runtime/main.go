package main

import (
	"github.com/pybridge-app/pybridge/services"

	"github.com/alphabatem/common/context"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Warn().Err(err).Msg("No .env file loaded")
	}

	ctx, err := context.NewCtx(
		&services.RedisService{},
		&services.SessionService{},
		&services.NotifyService{},
		&services.QueryCacheService{},
		&services.UpstreamService{},
		&services.AuthService{},
		&services.MutationService{},
		&services.ViewService{},
		&services.ChatService{},
		&services.AuthMiddleware{},
		&services.MonitoringService{},

		&services.HttpService{},
	)
	if err != nil {
		log.Fatal().Err(err)
		return
	}

	err = ctx.Run()
	if err != nil {
		log.Fatal().Err(err)
		return
	}
}
