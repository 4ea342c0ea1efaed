package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"arena-platform/apperr"
	"arena-platform/logger"
	"arena-platform/middleware"
	"arena-platform/services"
)

// ErrorHandler maps domain errors to their status and serializes a safe
// message. Anything unrecognized is wrapped as Internal, logged with full
// context and reported with a generic message.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"status": false, "message": fe.Message})
	}

	ae := apperr.From(err)
	if ae.Status >= fiber.StatusInternalServerError {
		logger.L().Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("code", ae.Code),
			zap.Error(ae),
		)
	}
	return c.Status(ae.Status).JSON(fiber.Map{"status": false, "message": ae.PublicMessage()})
}

// SetupRoutes wires the API surface. Every tenant-scoped route sits
// behind the viewer resolver; role checks are per group.
func SetupRoutes(
	app *fiber.App,
	resolver fiber.Handler,
	tenants *services.TenantService,
	players *services.PlayerService,
	competitions *services.CompetitionService,
	billing *services.BillingService,
) {
	// bench/test reset seam, outside viewer resolution
	app.Post("/initialize", tenants.Initialize)

	api := app.Group("/api", resolver)

	admin := api.Group("/admin", middleware.RequireRole(middleware.RoleAdmin))
	admin.Post("/tenants/add", tenants.CreateTenant)
	admin.Get("/tenants/billing", tenants.ListTenantBilling)

	organizer := api.Group("/organizer", middleware.RequireRole(middleware.RoleOrganizer))
	organizer.Get("/players", players.ListPlayers)
	organizer.Post("/players/add", players.AddPlayers)
	organizer.Post("/player/:player_id/disqualified", players.DisqualifyPlayer)
	organizer.Post("/competitions/add", competitions.AddCompetition)
	organizer.Post("/competition/:competition_id/finish", competitions.FinishCompetition)
	organizer.Post("/competition/:competition_id/result", competitions.UploadScores)
	organizer.Get("/billing", billing.OrganizerBilling)

	player := api.Group("/player", middleware.RequireRole(middleware.RolePlayer))
	player.Get("/player/:player_id", players.GetPlayer)
	player.Get("/competition/:competition_id/ranking", competitions.Ranking)
	player.Get("/competitions", competitions.ListCompetitions)
}
