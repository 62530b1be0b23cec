package platform

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/oauth2"

	// Register decoders for the formats Meta accepts plus webp, so
	// unsupported uploads are identified by name instead of failing
	// with an opaque decode error.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/ignite/campaign-optimizer/internal/config"
	"github.com/ignite/campaign-optimizer/internal/pkg/httpretry"
)

// objectiveMap translates internal objective names to the v21.0+
// OUTCOME_* objectives of the Marketing API.
var objectiveMap = map[string]string{
	"conversions":     "OUTCOME_SALES",
	"sales":           "OUTCOME_SALES",
	"traffic":         "OUTCOME_TRAFFIC",
	"lead_generation": "OUTCOME_LEADS",
	"leads":           "OUTCOME_LEADS",
	"awareness":       "OUTCOME_AWARENESS",
	"brand_awareness": "OUTCOME_AWARENESS",
	"reach":           "OUTCOME_AWARENESS",
	"engagement":      "OUTCOME_ENGAGEMENT",
	"video_views":     "OUTCOME_ENGAGEMENT",
	"app_installs":    "OUTCOME_APP_PROMOTION",
}

var bidStrategyMap = map[string]string{
	"auto":        "LOWEST_COST_WITHOUT_CAP",
	"lowest_cost": "LOWEST_COST_WITHOUT_CAP",
	"cost_cap":    "COST_CAP",
	"bid_cap":     "BID_CAP",
	"target_cost": "COST_CAP",
}

var optimizationGoalMap = map[string]string{
	"OUTCOME_SALES":         "OFFSITE_CONVERSIONS",
	"OUTCOME_TRAFFIC":       "LINK_CLICKS",
	"OUTCOME_LEADS":         "LEAD_GENERATION",
	"OUTCOME_AWARENESS":     "REACH",
	"OUTCOME_ENGAGEMENT":    "POST_ENGAGEMENT",
	"OUTCOME_APP_PROMOTION": "APP_INSTALLS",
}

// Image constraints enforced before upload.
const (
	metaMinAdSetDailyBudget = 1.0
	metaMaxImageSizeBytes   = 30 * 1024 * 1024
	metaMinImageDimension   = 600
)

var metaSupportedImageFormats = map[string]bool{
	"jpeg": true,
	"png":  true,
	"gif":  true,
	"bmp":  true,
	"tiff": true,
}

// Meta talks to the Marketing API over the Graph HTTP endpoint with a
// bearer token. The image-hash cache avoids re-uploading creatives whose
// bytes we have already pushed in this process.
type Meta struct {
	cfg     config.MetaConfig
	baseURL string
	client  httpretry.HTTPDoer

	mu          sync.Mutex
	imageHashes map[string]string // sha256 content hash -> meta image hash
}

// NewMeta creates an adapter authenticated with the configured access
// token and wrapped in the shared retry client.
func NewMeta(cfg config.MetaConfig) *Meta {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken})
	base := oauth2.NewClient(context.Background(), ts)
	base.Timeout = cfg.Timeout()

	return &Meta{
		cfg:         cfg,
		baseURL:     "https://graph.facebook.com/" + cfg.APIVersion,
		client:      httpretry.NewRetryClient(base, 3),
		imageHashes: map[string]string{},
	}
}

// NewMetaWithClient is the test seam: inject a client and endpoint.
func NewMetaWithClient(cfg config.MetaConfig, client httpretry.HTTPDoer, baseURL string) *Meta {
	return &Meta{
		cfg:         cfg,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		client:      client,
		imageHashes: map[string]string{},
	}
}

func (m *Meta) ValidatePlan(_ context.Context, plan *ExecutionPlan) []ValidationIssue {
	var issues []ValidationIssue

	if plan.TotalBudget <= 0 {
		issues = append(issues, ValidationIssue{
			Field:    "total_budget",
			Message:  "Budget must be positive",
			Severity: "error",
		})
	}
	if plan.CampaignName == "" {
		issues = append(issues, ValidationIssue{
			Field:    "campaign_name",
			Message:  "Campaign name is required",
			Severity: "error",
		})
	}

	if _, ok := objectiveMap[strings.ToLower(plan.Objective)]; !ok {
		issues = append(issues, ValidationIssue{
			Field: "objective",
			Message: fmt.Sprintf("Unknown objective '%s'. Supported: %s",
				plan.Objective, strings.Join(supportedObjectives(), ", ")),
			Severity: "error",
		})
	}

	for i, adSet := range plan.AdSets {
		if adSet.DailyBudget < metaMinAdSetDailyBudget {
			issues = append(issues, ValidationIssue{
				Field: fmt.Sprintf("ad_sets[%d].daily_budget", i),
				Message: fmt.Sprintf("Ad set '%s' daily budget $%.2f is below Meta minimum of $%.2f",
					adSet.Name, adSet.DailyBudget, metaMinAdSetDailyBudget),
				Severity: "error",
			})
		}

		if len(adSet.Creative) == 0 {
			continue
		}
		imageURL := creativeString(adSet.Creative, "image_url")
		imageHash := creativeString(adSet.Creative, "image_hash")
		if imageURL != "" && !strings.HasPrefix(imageURL, "http://") && !strings.HasPrefix(imageURL, "https://") {
			issues = append(issues, ValidationIssue{
				Field:    fmt.Sprintf("ad_sets[%d].creative.image_url", i),
				Message:  fmt.Sprintf("Invalid image URL '%s'. Must start with http:// or https://", imageURL),
				Severity: "error",
			})
		} else if imageURL == "" && imageHash == "" {
			issues = append(issues, ValidationIssue{
				Field:    fmt.Sprintf("ad_sets[%d].creative", i),
				Message:  fmt.Sprintf("Ad set '%s' has creative data but no image_url or image_hash", adSet.Name),
				Severity: "warning",
			})
		}
	}

	return issues
}

func (m *Meta) CreateCampaign(ctx context.Context, plan *ExecutionPlan, _ string) (*ExecutionResult, error) {
	issues := m.ValidatePlan(ctx, plan)
	if hasErrors(issues) {
		return &ExecutionResult{
			Success:          false,
			Platform:         PlatformMeta,
			ValidationIssues: issues,
			Error:            "Validation failed",
		}, nil
	}

	metaObjective := objectiveMap[strings.ToLower(plan.Objective)]
	optimizationGoal := optimizationGoalMap[metaObjective]
	if optimizationGoal == "" {
		optimizationGoal = "LINK_CLICKS"
	}

	// Step 1: the campaign itself, created paused.
	campaignParams := url.Values{}
	campaignParams.Set("name", plan.CampaignName)
	campaignParams.Set("objective", metaObjective)
	campaignParams.Set("status", "PAUSED")
	campaignParams.Set("special_ad_categories", jsonString(specialAdCategories(plan.Metadata)))

	campaignResp, err := m.graphPost(ctx, "/"+m.cfg.AdAccountID+"/campaigns", campaignParams)
	if err != nil {
		return m.failure(err, ""), nil
	}
	campaignID := stringField(campaignResp, "id")

	externalIDs := map[string]string{"campaign": campaignID}
	adSetIDs := map[string]string{}

	// Step 2: ad sets.
	for _, adSet := range plan.AdSets {
		adSetParams := url.Values{}
		adSetParams.Set("name", adSet.Name)
		adSetParams.Set("campaign_id", campaignID)
		adSetParams.Set("daily_budget", strconv.Itoa(dollarsToCents(adSet.DailyBudget)))
		adSetParams.Set("billing_event", "IMPRESSIONS")
		adSetParams.Set("optimization_goal", optimizationGoal)
		adSetParams.Set("bid_strategy", mapBidStrategy(adSet.BidStrategy))
		adSetParams.Set("status", "PAUSED")

		targeting := adSet.Targeting
		if len(targeting) == 0 {
			// Meta requires targeting; minimal default
			targeting = map[string]interface{}{
				"geo_locations": map[string]interface{}{"countries": []string{"US"}},
			}
		}
		adSetParams.Set("targeting", jsonString(targeting))

		adSetResp, err := m.graphPost(ctx, "/"+m.cfg.AdAccountID+"/adsets", adSetParams)
		if err != nil {
			return m.failure(err, campaignID), nil
		}
		adSetID := stringField(adSetResp, "id")
		externalIDs[adSet.Name] = adSetID
		adSetIDs[adSet.Name] = adSetID
	}

	// Step 3: creatives and ads for ad sets that carry creative data.
	creativesCreated := 0
	adsCreated := 0
	for _, adSet := range plan.AdSets {
		imageURL := creativeString(adSet.Creative, "image_url")
		imageHash := creativeString(adSet.Creative, "image_hash")
		if imageURL == "" && imageHash == "" {
			continue
		}

		if imageHash == "" {
			imageHash, err = m.uploadImageFromURL(ctx, imageURL)
			if err != nil {
				return m.failure(err, campaignID), nil
			}
		}

		pageID := creativeString(adSet.Creative, "page_id")
		if pageID == "" {
			pageID = m.cfg.PageID
		}
		cta := creativeString(adSet.Creative, "call_to_action_type")
		if cta == "" {
			cta = "LEARN_MORE"
		}

		creativeID, err := m.createAdCreative(ctx, adSet.Name+" - Creative", imageHash, pageID,
			creativeString(adSet.Creative, "link_url"), creativeString(adSet.Creative, "message"), cta)
		if err != nil {
			return m.failure(err, campaignID), nil
		}
		externalIDs[adSet.Name+"_creative"] = creativeID
		creativesCreated++

		adID, err := m.createAd(ctx, adSet.Name+" - Ad", adSetIDs[adSet.Name], creativeID)
		if err != nil {
			return m.failure(err, campaignID), nil
		}
		externalIDs[adSet.Name+"_ad"] = adID
		adsCreated++
	}

	return &ExecutionResult{
		Success:            true,
		Platform:           PlatformMeta,
		ExternalCampaignID: campaignID,
		ExternalIDs:        externalIDs,
		Links: map[string]string{
			"campaign_url": adsManagerURL(campaignID, m.cfg.AdAccountID),
		},
		RawResponse: map[string]interface{}{
			"campaign_id":       campaignID,
			"objective":         metaObjective,
			"ad_sets_created":   len(plan.AdSets),
			"creatives_created": creativesCreated,
			"ads_created":       adsCreated,
		},
	}, nil
}

func (m *Meta) PauseCampaign(ctx context.Context, externalCampaignID, _ string) (*ExecutionResult, error) {
	params := url.Values{}
	params.Set("status", "PAUSED")
	if _, err := m.graphPost(ctx, "/"+externalCampaignID, params); err != nil {
		return m.failure(err, externalCampaignID), nil
	}
	return &ExecutionResult{
		Success:            true,
		Platform:           PlatformMeta,
		ExternalCampaignID: externalCampaignID,
		RawResponse:        map[string]interface{}{"status": "paused"},
	}, nil
}

func (m *Meta) ResumeCampaign(ctx context.Context, externalCampaignID, _ string) (*ExecutionResult, error) {
	params := url.Values{}
	params.Set("status", "ACTIVE")
	if _, err := m.graphPost(ctx, "/"+externalCampaignID, params); err != nil {
		return m.failure(err, externalCampaignID), nil
	}
	return &ExecutionResult{
		Success:            true,
		Platform:           PlatformMeta,
		ExternalCampaignID: externalCampaignID,
		RawResponse:        map[string]interface{}{"status": "active"},
	}, nil
}

func (m *Meta) UpdateBudget(ctx context.Context, externalCampaignID string, newBudget float64, _ string) (*ExecutionResult, error) {
	if newBudget <= 0 {
		return &ExecutionResult{
			Success:            false,
			Platform:           PlatformMeta,
			ExternalCampaignID: externalCampaignID,
			Error:              "Budget must be positive",
		}, nil
	}

	params := url.Values{}
	params.Set("daily_budget", strconv.Itoa(dollarsToCents(newBudget)))
	if _, err := m.graphPost(ctx, "/"+externalCampaignID, params); err != nil {
		return m.failure(err, externalCampaignID), nil
	}
	return &ExecutionResult{
		Success:            true,
		Platform:           PlatformMeta,
		ExternalCampaignID: externalCampaignID,
		RawResponse: map[string]interface{}{
			"new_budget":       newBudget,
			"new_budget_cents": dollarsToCents(newBudget),
			"status":           "budget_updated",
		},
	}, nil
}

// --- creative helpers ---

func (m *Meta) createAdCreative(ctx context.Context, name, imageHash, pageID, linkURL, message, cta string) (string, error) {
	linkData := map[string]interface{}{
		"image_hash":     imageHash,
		"call_to_action": map[string]interface{}{"type": cta},
	}
	if linkURL != "" {
		linkData["link"] = linkURL
	}
	if message != "" {
		linkData["message"] = message
	}

	params := url.Values{}
	params.Set("name", name)
	params.Set("object_story_spec", jsonString(map[string]interface{}{
		"page_id":   pageID,
		"link_data": linkData,
	}))

	resp, err := m.graphPost(ctx, "/"+m.cfg.AdAccountID+"/adcreatives", params)
	if err != nil {
		return "", fmt.Errorf("create ad creative %q: %w", name, err)
	}
	return stringField(resp, "id"), nil
}

func (m *Meta) createAd(ctx context.Context, name, adSetID, creativeID string) (string, error) {
	params := url.Values{}
	params.Set("name", name)
	params.Set("adset_id", adSetID)
	params.Set("creative", jsonString(map[string]interface{}{"creative_id": creativeID}))
	params.Set("status", "PAUSED")

	resp, err := m.graphPost(ctx, "/"+m.cfg.AdAccountID+"/ads", params)
	if err != nil {
		return "", fmt.Errorf("create ad %q: %w", name, err)
	}
	return stringField(resp, "id"), nil
}

// --- image pipeline ---

func (m *Meta) uploadImageFromURL(ctx context.Context, imageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", fmt.Errorf("download image from %s: %w", imageURL, err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download image from %s: %w", imageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download image from %s: status %d", imageURL, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "image/") {
		return "", fmt.Errorf("URL did not return an image (content-type: %s)", ct)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, metaMaxImageSizeBytes+1))
	if err != nil {
		return "", fmt.Errorf("download image from %s: %w", imageURL, err)
	}
	return m.uploadImageBytes(ctx, data)
}

func (m *Meta) uploadImageBytes(ctx context.Context, data []byte) (string, error) {
	contentHash := sha256Hex(data)

	m.mu.Lock()
	cached, ok := m.imageHashes[contentHash]
	m.mu.Unlock()
	if ok {
		return cached, nil
	}

	if err := validateImage(data); err != nil {
		return "", err
	}

	metaHash, err := m.uploadAdImage(ctx, data)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.imageHashes[contentHash] = metaHash
	m.mu.Unlock()
	return metaHash, nil
}

func (m *Meta) uploadAdImage(ctx context.Context, data []byte) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("source", "creative")
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/"+m.cfg.AdAccountID+"/adimages", bytes.NewReader(body.Bytes()))
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := m.doGraph(req)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}

	images, _ := resp["images"].(map[string]interface{})
	for _, v := range images {
		if entry, ok := v.(map[string]interface{}); ok {
			if h := stringField(entry, "hash"); h != "" {
				return h, nil
			}
		}
	}
	return "", errors.New("upload image: response carried no image hash")
}

// validateImage checks decodability, format, dimensions, and size.
func validateImage(data []byte) error {
	if len(data) == 0 {
		return errors.New("image data is empty")
	}
	if len(data) > metaMaxImageSizeBytes {
		return fmt.Errorf("image size %d bytes exceeds maximum %d bytes", len(data), metaMaxImageSizeBytes)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("image data is corrupt or unreadable: %w", err)
	}
	if !metaSupportedImageFormats[format] {
		return fmt.Errorf("unsupported image format %q", format)
	}
	if cfg.Width < metaMinImageDimension || cfg.Height < metaMinImageDimension {
		return fmt.Errorf("image dimensions %dx%d are below the minimum %dx%d",
			cfg.Width, cfg.Height, metaMinImageDimension, metaMinImageDimension)
	}
	return nil
}

// --- graph plumbing ---

type graphError struct {
	Code    int
	Message string
}

func (e *graphError) Error() string {
	return fmt.Sprintf("graph api error %d: %s", e.Code, e.Message)
}

func (m *Meta) graphPost(ctx context.Context, path string, params url.Values) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return m.doGraph(req)
}

func (m *Meta) doGraph(req *http.Request) (map[string]interface{}, error) {
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode graph response (status %d): %w", resp.StatusCode, err)
	}

	if errObj, ok := payload["error"].(map[string]interface{}); ok {
		ge := &graphError{Message: stringField(errObj, "message")}
		if code, ok := errObj["code"].(float64); ok {
			ge.Code = int(code)
		}
		return nil, ge
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &graphError{Code: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return payload, nil
}

// failure converts a transport or Graph error into a result the
// executor can record.
func (m *Meta) failure(err error, externalCampaignID string) *ExecutionResult {
	res := &ExecutionResult{
		Success:            false,
		Platform:           PlatformMeta,
		ExternalCampaignID: externalCampaignID,
		Error:              err.Error(),
	}
	var ge *graphError
	if errors.As(err, &ge) {
		res.RawResponse = map[string]interface{}{
			"error_code":    ge.Code,
			"error_message": ge.Message,
		}
	}
	return res
}

// --- small helpers ---

func dollarsToCents(dollars float64) int {
	return int(math.Round(dollars * 100))
}

func adsManagerURL(campaignID, adAccountID string) string {
	account := strings.TrimPrefix(adAccountID, "act_")
	return fmt.Sprintf("https://www.facebook.com/adsmanager/manage/campaigns?act=%s&campaign_ids=%s", account, campaignID)
}

func mapBidStrategy(strategy string) string {
	if mapped, ok := bidStrategyMap[strategy]; ok {
		return mapped
	}
	return "LOWEST_COST_WITHOUT_CAP"
}

func supportedObjectives() []string {
	keys := make([]string, 0, len(objectiveMap))
	for k := range objectiveMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func specialAdCategories(metadata map[string]interface{}) interface{} {
	if v, ok := metadata["special_ad_categories"]; ok {
		return v
	}
	return []string{}
}

func creativeString(creative map[string]interface{}, key string) string {
	if creative == nil {
		return ""
	}
	s, _ := creative[key].(string)
	return s
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

func jsonString(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
