package timezone

import (
	"strings"
	"sync"
	"time"
	_ "time/tzdata" // 容器镜像里不一定有 zoneinfo

	"go.uber.org/zap"
)

// DefaultZone 默认时区
const DefaultZone = "America/Sao_Paulo"

// 州代码（UF）→ IANA 时区
var regionZones = map[string]string{
	"AC": "America/Rio_Branco",
	"AL": "America/Maceio",
	"AP": "America/Belem",
	"AM": "America/Manaus",
	"BA": "America/Bahia",
	"CE": "America/Fortaleza",
	"DF": "America/Sao_Paulo",
	"ES": "America/Sao_Paulo",
	"GO": "America/Sao_Paulo",
	"MA": "America/Fortaleza",
	"MT": "America/Cuiaba",
	"MS": "America/Campo_Grande",
	"MG": "America/Sao_Paulo",
	"PA": "America/Belem",
	"PB": "America/Fortaleza",
	"PR": "America/Sao_Paulo",
	"PE": "America/Recife",
	"PI": "America/Fortaleza",
	"RJ": "America/Sao_Paulo",
	"RN": "America/Fortaleza",
	"RS": "America/Sao_Paulo",
	"RO": "America/Porto_Velho",
	"RR": "America/Boa_Vista",
	"SC": "America/Sao_Paulo",
	"SP": "America/Sao_Paulo",
	"SE": "America/Maceio",
	"TO": "America/Araguaina",
}

// 加载失败时的兜底（巴西利亚时间，无夏令时）
var fallbackLocation = time.FixedZone("BRT", -3*60*60)

// Resolver 时区解析器
type Resolver struct {
	defaultZone string
	logger      *zap.Logger

	mu        sync.RWMutex
	locations map[string]*time.Location
}

// NewResolver 创建时区解析器；defaultZone 为空时使用 DefaultZone
func NewResolver(defaultZone string, logger *zap.Logger) *Resolver {
	if defaultZone == "" {
		defaultZone = DefaultZone
	}
	return &Resolver{
		defaultZone: defaultZone,
		logger:      logger,
		locations:   make(map[string]*time.Location),
	}
}

// Resolve 州代码 → 时区名，大小写和空白不敏感，未知或为空时返回默认时区
func (r *Resolver) Resolve(regionCode string) string {
	code := strings.ToUpper(strings.TrimSpace(regionCode))
	if zone, ok := regionZones[code]; ok {
		return zone
	}
	r.logger.Debug("Region code not mapped, using default timezone",
		zap.String("region_code", regionCode),
		zap.String("timezone", r.defaultZone),
	)
	return r.defaultZone
}

// Location 加载时区；失败时依次回退到默认时区和固定 UTC-3
func (r *Resolver) Location(zone string) *time.Location {
	if zone == "" {
		zone = r.defaultZone
	}

	r.mu.RLock()
	loc, ok := r.locations[zone]
	r.mu.RUnlock()
	if ok {
		return loc
	}

	loc, err := time.LoadLocation(zone)
	if err != nil {
		r.logger.Warn("Failed to load timezone",
			zap.String("timezone", zone),
			zap.Error(err),
		)
		if zone != r.defaultZone {
			return r.Location(r.defaultZone)
		}
		loc = fallbackLocation
	}

	r.mu.Lock()
	r.locations[zone] = loc
	r.mu.Unlock()
	return loc
}

// ResolveLocation Resolve + Location
func (r *Resolver) ResolveLocation(regionCode string) (string, *time.Location) {
	zone := r.Resolve(regionCode)
	return zone, r.Location(zone)
}
