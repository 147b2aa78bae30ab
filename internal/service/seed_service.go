package service

import (
	"context"
	"fmt"
	"math/rand"

	"golang.org/x/crypto/bcrypt"

	"github.com/beereshbc/influencaa-backend/internal/domain/valueobject"
	"github.com/beereshbc/influencaa-backend/internal/models"
)

// SeedResult — созданные демо-аккаунты.
type SeedResult struct {
	Password string        `json:"password"`
	Sellers  []models.User `json:"sellers"`
	Clients  []models.User `json:"clients"`
	Packages int           `json:"packages"`
	Orders   int           `json:"orders"`
}

// SeedService заполняет базу демо-данными для разработки.
type SeedService struct {
	users   AuthRepository
	catalog *CatalogService
	orders  *OrderService
	rnd     *rand.Rand
}

// NewSeedService создаёт сервис генерации демо-данных.
func NewSeedService(users AuthRepository, catalog *CatalogService, orders *OrderService, seed int64) *SeedService {
	return &SeedService{
		users:   users,
		catalog: catalog,
		orders:  orders,
		rnd:     rand.New(rand.NewSource(seed)),
	}
}

const seedPassword = "Demo12345"

var seedPackages = []struct {
	platform valueobject.Platform
	code     string
	title    string
	amount   float64
	timeline string
}{
	{valueobject.PlatformInstagram, "reel", "Instagram Reel", 5000, "7 days"},
	{valueobject.PlatformInstagram, "story", "Instagram Story x3", 2500, "3 days"},
	{valueobject.PlatformYouTube, "integration", "YouTube integration", 15000, "14 days"},
	{valueobject.PlatformLinkedIn, "post", "LinkedIn post", 4000, "5 days"},
	{valueobject.PlatformTwitter, "thread", "X thread", 1500, "2 days"},
}

var seedNames = []string{"Asha", "Ravi", "Meera", "Kabir", "Isha", "Arjun", "Nisha", "Vikram"}

// Seed создаёт sellers инфлюенсеров с пакетами и clients брендов с заказами в статусе pending.
func (s *SeedService) Seed(ctx context.Context, sellers, clients, ordersPerClient int) (*SeedResult, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(seedPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("seed service: hash password %w", err)
	}

	res := &SeedResult{Password: seedPassword}
	suffix := s.rnd.Intn(1_000_000)

	for i := 0; i < sellers; i++ {
		user, err := s.createUser(ctx, fmt.Sprintf("seller%d.%d@demo.influencaa.test", i, suffix), models.RoleSeller, string(hash))
		if err != nil {
			return nil, err
		}
		res.Sellers = append(res.Sellers, *user)

		for _, p := range seedPackages {
			if s.rnd.Intn(3) == 0 {
				continue
			}
			_, err := s.catalog.UpsertPackage(ctx, user.ID, UpsertPackageInput{
				Platform:     string(p.platform),
				Service:      p.code,
				Title:        p.title,
				Amount:       p.amount,
				Timeline:     p.timeline,
				Revisions:    s.rnd.Intn(3),
				Description:  p.title + " by " + user.Name,
				Deliverables: []string{p.code},
			})
			if err != nil {
				return nil, fmt.Errorf("seed service: package %w", err)
			}
			res.Packages++
		}
	}

	for i := 0; i < clients; i++ {
		user, err := s.createUser(ctx, fmt.Sprintf("brand%d.%d@demo.influencaa.test", i, suffix), models.RoleClient, string(hash))
		if err != nil {
			return nil, err
		}
		res.Clients = append(res.Clients, *user)

		for j := 0; j < ordersPerClient && len(res.Sellers) > 0; j++ {
			seller := res.Sellers[s.rnd.Intn(len(res.Sellers))]
			p := seedPackages[s.rnd.Intn(len(seedPackages))]
			amount := p.amount

			_, err := s.orders.Create(ctx, user.ID, CreateOrderInput{
				InfluencerID:   seller.ID.String(),
				InfluencerName: seller.Name,
				Platform:       string(p.platform),
				Service:        p.code,
				ServiceDetails: &models.ServiceDetails{
					Amount:       p.amount,
					Timeline:     p.timeline,
					Description:  p.title,
					Deliverables: []string{p.code},
				},
				OrderDetails: &models.OrderDetails{
					BrandName:     user.Name + " Brand",
					ContactPerson: user.Name,
					Email:         user.Email,
					Phone:         "+910000000000",
					CampaignBrief: "Demo campaign",
					Budget:        fmt.Sprintf("%.0f", p.amount),
					Timeline:      p.timeline,
				},
				TotalAmount: &amount,
			})
			if err != nil {
				return nil, fmt.Errorf("seed service: order %w", err)
			}
			res.Orders++
		}
	}

	return res, nil
}

func (s *SeedService) createUser(ctx context.Context, email, role, hash string) (*models.User, error) {
	user := &models.User{
		Email:        email,
		Name:         seedNames[s.rnd.Intn(len(seedNames))],
		PasswordHash: hash,
		Role:         role,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("seed service: user %w", err)
	}
	return user, nil
}
