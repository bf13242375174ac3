package seeder

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"devrelay/internal/activities"
	"devrelay/internal/campaigns"
	"devrelay/internal/developers"
	"devrelay/internal/funnel"
	"devrelay/internal/tenants"
	"devrelay/internal/users"
)

// Seeder populates the database with a demo tenant and a realistic spread
// of developers, activities, campaigns and attributions.
type Seeder struct {
	DBManager     cartridge.DBManager
	Logger        *slog.Logger
	ActivityCount int
}

// NewSeeder creates a new seeder instance
func NewSeeder(dbManager cartridge.DBManager, logger *slog.Logger, activityCount int) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	if activityCount < 100 {
		activityCount = 100
	}
	return &Seeder{
		DBManager:     dbManager,
		Logger:        logger,
		ActivityCount: activityCount,
	}
}

// Actions per funnel stage. The weights give the generated data a funnel
// shape: lots of awareness, little advocacy.
var stageActions = []struct {
	action string
	stage  string
	weight int
}{
	{"docs_visit", funnel.StageAwareness, 40},
	{"blog_read", funnel.StageAwareness, 25},
	{"repo_starred", funnel.StageEngagement, 12},
	{"signup", funnel.StageEngagement, 10},
	{"api_call", funnel.StageAdoption, 7},
	{"sdk_installed", funnel.StageAdoption, 4},
	{"talk_given", funnel.StageAdvocacy, 1},
	{"blog_authored", funnel.StageAdvocacy, 1},
}

var sources = []string{"web", "github", "discord", "conference", "newsletter"}

var countryPool = []string{"US", "DE", "BR", "IN", "JP", "FR", "NG", "unknown"}

var developerNames = []string{
	"Ada Kowalski", "Bruno Carvalho", "Chioma Eze", "Daniyar Akhmetov",
	"Elena Petrova", "Felix Bauer", "Grace Ademola", "Hiro Tanaka",
	"Ines Moreau", "Jonas Lindqvist", "Katya Melnyk", "Liam O'Brien",
	"Mei Chen", "Noah Fischer", "Olga Ivanova", "Priya Sharma",
	"Quentin Roux", "Rosa Alvarez", "Samir Haddad", "Tess van Dijk",
}

var campaignSeeds = []struct {
	name    string
	channel string
	budget  string
}{
	{"Launch Week", "social", "4000"},
	{"DevCon Sponsorship", "conference", "12000"},
	{"Docs SEO Push", "content", "2500"},
}

// Run seeds the demo tenant end to end.
func (s *Seeder) Run(ctx context.Context) error {
	start := time.Now()
	db := s.DBManager.GetConnection()

	s.Logger.Info("Seeding demo data...", slog.Int("activityCount", s.ActivityCount))

	tenant, err := tenants.FindBySlug(db, "demo")
	if err != nil {
		tenant, err = tenants.Create(db, "Demo Workspace", "demo")
		if err != nil {
			return fmt.Errorf("failed to create demo tenant: %w", err)
		}
	}

	users.SetupAdminUserIfNotExists(db, tenant.ID, "admin@demo.local")

	mappings := make(map[string]string, len(stageActions))
	for _, sa := range stageActions {
		mappings[sa.action] = sa.stage
	}
	if err := funnel.ReplaceMappings(db, s.Logger, tenant.ID, mappings); err != nil {
		return fmt.Errorf("failed to seed action mappings: %w", err)
	}

	devs, err := s.seedDevelopers(db, tenant.ID)
	if err != nil {
		return err
	}

	campaignList, err := s.seedCampaigns(db, tenant.ID)
	if err != nil {
		return err
	}

	if err := s.seedActivities(ctx, db, tenant.ID, devs, campaignList); err != nil {
		return err
	}

	s.Logger.Info("Seeding completed",
		slog.String("tenant", tenant.Slug),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

func (s *Seeder) seedDevelopers(db *gorm.DB, tenantID uint) ([]developers.Developer, error) {
	result := make([]developers.Developer, 0, len(developerNames))

	for _, name := range developerNames {
		email := emailFor(name)

		existing, err := developers.FindDeveloperByIdentifier(db, tenantID, developers.IdentifierKindEmail, email)
		if err == nil {
			result = append(result, *existing)
			continue
		}

		dev, err := developers.Create(db, s.Logger, tenantID, developers.CreateDeveloperParams{
			DisplayName: name,
			Email:       email,
			Consented:   true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to seed developer %s: %w", name, err)
		}

		_, err = developers.ClaimIdentifier(db, s.Logger, tenantID, dev.UUID, developers.ClaimIdentifierParams{
			Kind:  developers.IdentifierKindEmail,
			Value: email,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to seed identifier for %s: %w", name, err)
		}

		result = append(result, *dev)
	}

	s.Logger.Info("Seeded developers", slog.Int("count", len(result)))
	return result, nil
}

func (s *Seeder) seedCampaigns(db *gorm.DB, tenantID uint) ([]campaigns.Campaign, error) {
	result := make([]campaigns.Campaign, 0, len(campaignSeeds))

	for _, seed := range campaignSeeds {
		campaign, err := campaigns.Create(db, s.Logger, tenantID, campaigns.CreateCampaignParams{
			Name:    seed.name,
			Channel: seed.channel,
		})
		if err != nil {
			if errors.Is(err, campaigns.ErrCampaignNameTaken) {
				continue
			}
			return nil, fmt.Errorf("failed to seed campaign %s: %w", seed.name, err)
		}

		_, err = campaigns.AddBudget(db, s.Logger, tenantID, campaign.UUID, campaigns.CreateBudgetParams{
			Category: "general",
			Amount:   seed.budget,
			Currency: "USD",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to seed budget for %s: %w", seed.name, err)
		}

		result = append(result, *campaign)
	}

	s.Logger.Info("Seeded campaigns", slog.Int("count", len(result)))
	return result, nil
}

func (s *Seeder) seedActivities(ctx context.Context, db *gorm.DB, tenantID uint, devs []developers.Developer, campaignList []campaigns.Campaign) error {
	totalWeight := 0
	for _, sa := range stageActions {
		totalWeight += sa.weight
	}

	created := 0
	for i := 0; i < s.ActivityCount; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		sa := pickWeighted(totalWeight)
		occurredAt := time.Now().UTC().Add(-time.Duration(rand.IntN(90*24*60*60)) * time.Second)

		input := &activities.CollectActivityInput{
			Action:     sa.action,
			OccurredAt: occurredAt,
			Source:     sources[rand.IntN(len(sources))],
			Country:    countryPool[rand.IntN(len(countryPool))],
		}

		// A share of traffic stays anonymous; the rest belongs to known
		// developers so the funnel shows identity progression.
		if rand.IntN(100) < 40 {
			input.AnonID = fmt.Sprintf("anon-%d", rand.IntN(s.ActivityCount))
		} else {
			input.DeveloperUUID = devs[rand.IntN(len(devs))].UUID
		}

		// Adoption and advocacy activities occasionally carry value and
		// get attributed to a campaign, so ROI reports have data.
		attributable := sa.stage == funnel.StageAdoption || sa.stage == funnel.StageAdvocacy
		if attributable && rand.IntN(100) < 30 {
			input.Value = fmt.Sprintf("%d", 100+rand.IntN(900))
		}

		activity, err := activities.Collect(db, s.Logger, tenantID, input)
		if err != nil {
			return fmt.Errorf("failed to seed activity: %w", err)
		}
		created++

		if attributable && len(campaignList) > 0 && rand.IntN(100) < 25 {
			campaign := campaignList[rand.IntN(len(campaignList))]
			if _, err := campaigns.Attribute(db, s.Logger, tenantID, campaign.UUID, activity.UUID, 1); err != nil {
				if !errors.Is(err, campaigns.ErrAlreadyAttributed) {
					return fmt.Errorf("failed to seed attribution: %w", err)
				}
			}
		}
	}

	s.Logger.Info("Seeded activities", slog.Int("count", created))
	return nil
}

func pickWeighted(totalWeight int) struct {
	action string
	stage  string
	weight int
} {
	n := rand.IntN(totalWeight)
	for _, sa := range stageActions {
		if n < sa.weight {
			return sa
		}
		n -= sa.weight
	}
	return stageActions[0]
}

func emailFor(name string) string {
	slug := strings.ToLower(name)
	slug = strings.ReplaceAll(slug, " ", ".")
	slug = strings.ReplaceAll(slug, "'", "")
	return slug + "@example.com"
}
