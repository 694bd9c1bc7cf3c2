package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kstarkov/craftmarket-system/internal/broadcast"
	"github.com/kstarkov/craftmarket-system/internal/model"
	"github.com/kstarkov/craftmarket-system/internal/repository"
	"github.com/kstarkov/craftmarket-system/internal/settings"
)

type stubRepo struct {
	createUserID  int64
	createUserErr error

	getUser    *model.User
	getUserErr error

	wallet    *model.Wallet
	walletErr error

	adjustTransaction *model.Transaction
	adjustBalance     int64
	adjustErr         error
	adjustCalls       int

	withdrawnTotal int64

	auction    *model.Auction
	auctionErr error

	placeBidBid     *model.Bid
	placeBidAuction *model.Auction
	placeBidErr     error

	settleErr    error
	settleCalls  int
	settledSplit model.PaymentSplit

	withdrawalReq *model.WithdrawalRequest
	withdrawalErr error
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) CreateUser(ctx context.Context, login string, passwordHash []byte, role model.Role) (int64, error) {
	return s.createUserID, s.createUserErr
}

func (s *stubRepo) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	return s.getUser, s.getUserErr
}

func (s *stubRepo) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return s.getUser, s.getUserErr
}

func (s *stubRepo) GetWalletByUser(ctx context.Context, userID int64) (*model.Wallet, error) {
	return s.wallet, s.walletErr
}

func (s *stubRepo) Adjust(ctx context.Context, walletID int64, deltaCents int64, kind model.TransactionKind, status model.TransactionStatus, description string, auctionID *int64) (*model.Transaction, int64, error) {
	s.adjustCalls++
	return s.adjustTransaction, s.adjustBalance, s.adjustErr
}

func (s *stubRepo) GetTransactionsByWallet(ctx context.Context, walletID int64) ([]model.Transaction, error) {
	return nil, nil
}

func (s *stubRepo) GetWithdrawnTotal(ctx context.Context, walletID int64) (int64, error) {
	return s.withdrawnTotal, nil
}

func (s *stubRepo) GetAuctionByID(ctx context.Context, id int64) (*model.Auction, error) {
	return s.auction, s.auctionErr
}

func (s *stubRepo) GetActiveAuctions(ctx context.Context) ([]model.Auction, error) {
	return nil, nil
}

func (s *stubRepo) PlaceBid(ctx context.Context, auctionID, userID int64, amountCents int64, ipAddress string, antiSnipingWindow time.Duration) (*model.Bid, *model.Auction, error) {
	return s.placeBidBid, s.placeBidAuction, s.placeBidErr
}

func (s *stubRepo) GetBidsByAuction(ctx context.Context, auctionID int64) ([]model.Bid, error) {
	return nil, nil
}

func (s *stubRepo) PromotePendingAuctions(ctx context.Context) (int64, error) {
	return 0, nil
}

func (s *stubRepo) EndExpiredAuctions(ctx context.Context) ([]model.Auction, error) {
	return nil, nil
}

func (s *stubRepo) GetUnsettledAuctions(ctx context.Context, limit int) ([]model.Auction, error) {
	return nil, nil
}

func (s *stubRepo) SettleAuction(ctx context.Context, auctionID int64, split model.PaymentSplit, buyerWalletID, sellerWalletID int64) error {
	s.settleCalls++
	s.settledSplit = split
	return s.settleErr
}

func (s *stubRepo) CreateWithdrawalRequest(ctx context.Context, userID int64, amountCents int64, paymentDetails string) (*model.WithdrawalRequest, error) {
	return s.withdrawalReq, s.withdrawalErr
}

func (s *stubRepo) GetWithdrawalByID(ctx context.Context, id int64) (*model.WithdrawalRequest, error) {
	return s.withdrawalReq, s.withdrawalErr
}

func (s *stubRepo) TransitionWithdrawal(ctx context.Context, id int64, to model.WithdrawalStatus, notes string, setProcessedAt bool) (*model.WithdrawalRequest, error) {
	return s.withdrawalReq, s.withdrawalErr
}

func (s *stubRepo) ProcessWithdrawal(ctx context.Context, id int64) (*model.WithdrawalRequest, *model.Transaction, error) {
	return s.withdrawalReq, s.adjustTransaction, s.withdrawalErr
}

func (s *stubRepo) GetWithdrawalsByUser(ctx context.Context, userID int64) ([]model.WithdrawalRequest, error) {
	return nil, nil
}

func (s *stubRepo) ListWithdrawalsByStatus(ctx context.Context, status model.WithdrawalStatus) ([]model.WithdrawalRequest, error) {
	return nil, nil
}

type stubSettingsSource struct {
	values map[string]string
}

func (s *stubSettingsSource) GetSetting(ctx context.Context, key string) (string, error) {
	return s.values[key], nil
}

type recordingPublisher struct {
	bidFacts     []broadcast.BidPlacedFact
	endedFacts   []broadcast.AuctionEndedFact
	publishError error
}

func (p *recordingPublisher) PublishBidPlaced(ctx context.Context, fact broadcast.BidPlacedFact) error {
	p.bidFacts = append(p.bidFacts, fact)
	return p.publishError
}

func (p *recordingPublisher) PublishAuctionEnded(ctx context.Context, fact broadcast.AuctionEndedFact) error {
	p.endedFacts = append(p.endedFacts, fact)
	return p.publishError
}

func newTestService(repo *stubRepo, pub broadcast.Publisher) *Service {
	if pub == nil {
		pub = broadcast.NopPublisher{}
	}
	cache := settings.NewCache(&stubSettingsSource{values: map[string]string{}})
	return NewService(repo, pub, cache, zap.NewNop())
}

func TestHashPasswordDeterministic(t *testing.T) {
	a := hashPassword("user", "pass")
	b := hashPassword("user", "pass")
	c := hashPassword("user", "other")

	if string(a) != string(b) {
		t.Fatalf("hashPassword must be deterministic, got %x and %x", a, b)
	}
	if string(a) == string(c) {
		t.Fatalf("different passwords must produce different hashes")
	}
}

func TestRegisterUser_PropagatesDuplicateError(t *testing.T) {
	repo := &stubRepo{createUserErr: repository.ErrUserExists}
	svc := newTestService(repo, nil)

	_, err := svc.RegisterUser(context.Background(), "login", "pass", model.RoleUser)
	if !errors.Is(err, repository.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestRegisterUser_RejectsAdminRole(t *testing.T) {
	svc := newTestService(&stubRepo{}, nil)

	_, err := svc.RegisterUser(context.Background(), "login", "pass", model.RoleAdmin)
	if err == nil {
		t.Fatalf("expected error for admin role registration")
	}
}

func TestAuthenticateUser_InvalidCredentials(t *testing.T) {
	hashed := hashPassword("user", "correct")
	repo := &stubRepo{
		getUser: &model.User{ID: 1, Login: "user", PasswordHash: hashed, Role: model.RoleUser},
	}
	svc := newTestService(repo, nil)

	_, err := svc.AuthenticateUser(context.Background(), "user", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestGetBalance_ConvertsToRubles(t *testing.T) {
	repo := &stubRepo{
		wallet:         &model.Wallet{ID: 1, UserID: 1, Balance: 150, IsActive: true},
		withdrawnTotal: 50,
	}
	svc := newTestService(repo, nil)

	balance, err := svc.GetBalance(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetBalance error: %v", err)
	}
	if balance.Current != 1.5 {
		t.Fatalf("Current = %v, want 1.5", balance.Current)
	}
	if balance.Withdrawn != 0.5 {
		t.Fatalf("Withdrawn = %v, want 0.5", balance.Withdrawn)
	}
}

func TestCreateDeposit_Validation(t *testing.T) {
	repo := &stubRepo{}
	svc := newTestService(repo, nil)

	_, _, err := svc.CreateDeposit(context.Background(), 1, -10)
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if repo.adjustCalls != 0 {
		t.Fatalf("adjust called for invalid amount")
	}
}

func TestRequestWithdrawal_Validation(t *testing.T) {
	svc := newTestService(&stubRepo{}, nil)

	_, err := svc.RequestWithdrawal(context.Background(), 1, 0, "4561261212345467")
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestPlaceBid_InvalidAmount(t *testing.T) {
	svc := newTestService(&stubRepo{}, nil)

	_, _, err := svc.PlaceBid(context.Background(), 1, 1, -5, "127.0.0.1")
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestPlaceBid_PublishesFact(t *testing.T) {
	now := time.Now()
	price := int64(10500)
	repo := &stubRepo{
		getUser: &model.User{ID: 5, Login: "bidder"},
		placeBidBid: &model.Bid{
			ID: 7, AuctionID: 3, UserID: 5, Amount: 10500, IsWinning: true, CreatedAt: now,
		},
		placeBidAuction: &model.Auction{
			ID: 3, Price: &price, BidCount: 1, Status: model.AuctionStatusActive,
		},
	}
	pub := &recordingPublisher{}
	svc := newTestService(repo, pub)

	bid, auction, err := svc.PlaceBid(context.Background(), 5, 3, 105, "127.0.0.1")
	if err != nil {
		t.Fatalf("PlaceBid error: %v", err)
	}
	if bid.ID != 7 || auction.ID != 3 {
		t.Fatalf("unexpected bid/auction: %+v %+v", bid, auction)
	}

	if len(pub.bidFacts) != 1 {
		t.Fatalf("published facts = %d, want 1", len(pub.bidFacts))
	}
	fact := pub.bidFacts[0]
	if fact.Bid.Amount != 105 {
		t.Fatalf("fact amount = %v, want 105", fact.Bid.Amount)
	}
	if fact.Bid.User.Name != "bidder" {
		t.Fatalf("fact user name = %q, want bidder", fact.Bid.User.Name)
	}
	if fact.Auction.BidCount != 1 {
		t.Fatalf("fact bid count = %d, want 1", fact.Auction.BidCount)
	}
}

func TestPlaceBid_PublishErrorDoesNotFail(t *testing.T) {
	price := int64(200)
	repo := &stubRepo{
		getUser:         &model.User{ID: 5, Login: "bidder"},
		placeBidBid:     &model.Bid{ID: 1, AuctionID: 2, UserID: 5, Amount: 200},
		placeBidAuction: &model.Auction{ID: 2, Price: &price, BidCount: 1},
	}
	pub := &recordingPublisher{publishError: errors.New("broadcast down")}
	svc := newTestService(repo, pub)

	_, _, err := svc.PlaceBid(context.Background(), 5, 2, 2, "127.0.0.1")
	if err != nil {
		t.Fatalf("PlaceBid must not fail on publish error, got %v", err)
	}
}

func TestPlaceBid_PropagatesBusinessErrors(t *testing.T) {
	repo := &stubRepo{placeBidErr: model.ErrBidTooLow}
	svc := newTestService(repo, nil)

	_, _, err := svc.PlaceBid(context.Background(), 1, 1, 50, "")
	if !errors.Is(err, model.ErrBidTooLow) {
		t.Fatalf("expected ErrBidTooLow, got %v", err)
	}
}

func endedAuction(winnerID *int64, priceCents int64) *model.Auction {
	price := priceCents
	return &model.Auction{
		ID:           9,
		SellerID:     2,
		ReservePrice: 100,
		Price:        &price,
		Status:       model.AuctionStatusEnded,
		WinnerID:     winnerID,
	}
}

func TestProcessAuctionPayment_NoWinner(t *testing.T) {
	repo := &stubRepo{auction: endedAuction(nil, 100000)}
	svc := newTestService(repo, nil)

	ok, err := svc.ProcessAuctionPayment(context.Background(), 9)
	if err != nil {
		t.Fatalf("ProcessAuctionPayment error: %v", err)
	}
	if ok {
		t.Fatalf("settlement succeeded without winner")
	}
	if repo.settleCalls != 0 {
		t.Fatalf("settle called without winner")
	}
}

func TestProcessAuctionPayment_NotEnded(t *testing.T) {
	winner := int64(5)
	a := endedAuction(&winner, 100000)
	a.Status = model.AuctionStatusActive
	repo := &stubRepo{auction: a}
	svc := newTestService(repo, nil)

	ok, err := svc.ProcessAuctionPayment(context.Background(), 9)
	if err != nil || ok {
		t.Fatalf("ok = %v, err = %v; want false, nil", ok, err)
	}
}

func TestProcessAuctionPayment_MissingWallet(t *testing.T) {
	winner := int64(5)
	repo := &stubRepo{
		auction:   endedAuction(&winner, 100000),
		walletErr: repository.ErrWalletNotFound,
	}
	svc := newTestService(repo, nil)

	ok, err := svc.ProcessAuctionPayment(context.Background(), 9)
	if err != nil {
		t.Fatalf("ProcessAuctionPayment error: %v", err)
	}
	if ok {
		t.Fatalf("settlement succeeded with missing wallet")
	}
}

func TestProcessAuctionPayment_InsufficientFunds(t *testing.T) {
	winner := int64(5)
	repo := &stubRepo{
		auction: endedAuction(&winner, 100000),
		wallet:  &model.Wallet{ID: 1, Balance: 500, IsActive: true},
	}
	svc := newTestService(repo, nil)

	ok, err := svc.ProcessAuctionPayment(context.Background(), 9)
	if err != nil {
		t.Fatalf("ProcessAuctionPayment error: %v", err)
	}
	if ok {
		t.Fatalf("settlement succeeded with insufficient buyer funds")
	}
	if repo.settleCalls != 0 {
		t.Fatalf("settle called with insufficient buyer funds")
	}
}

func TestProcessAuctionPayment_Success(t *testing.T) {
	winner := int64(5)
	repo := &stubRepo{
		auction: endedAuction(&winner, 100000),
		wallet:  &model.Wallet{ID: 1, Balance: 200000, IsActive: true},
	}
	svc := newTestService(repo, nil)

	ok, err := svc.ProcessAuctionPayment(context.Background(), 9)
	if err != nil {
		t.Fatalf("ProcessAuctionPayment error: %v", err)
	}
	if !ok {
		t.Fatalf("settlement failed")
	}
	if repo.settleCalls != 1 {
		t.Fatalf("settle calls = %d, want 1", repo.settleCalls)
	}
	// Ставка комиссии по умолчанию 10%.
	if repo.settledSplit.Commission != 10000 {
		t.Fatalf("commission = %d, want 10000", repo.settledSplit.Commission)
	}
	if repo.settledSplit.SellerEarnings != 90000 {
		t.Fatalf("seller earnings = %d, want 90000", repo.settledSplit.SellerEarnings)
	}
}

func TestProcessAuctionPayment_AlreadySettled(t *testing.T) {
	winner := int64(5)
	a := endedAuction(&winner, 100000)
	a.IsSettled = true
	repo := &stubRepo{auction: a}
	svc := newTestService(repo, nil)

	ok, err := svc.ProcessAuctionPayment(context.Background(), 9)
	if err != nil || ok {
		t.Fatalf("ok = %v, err = %v; want false, nil", ok, err)
	}
	if repo.settleCalls != 0 {
		t.Fatalf("settle called for settled auction")
	}
}
