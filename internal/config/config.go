package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"siteforms/internal/forms"
	"siteforms/internal/i18n"
)

// Config models siteforms.yml.
type Config struct {
	Site struct {
		ID           string `yaml:"id"`
		Locale       string `yaml:"locale"`
		PhonePattern string `yaml:"phone_pattern"`
	} `yaml:"site"`
	Timing struct {
		SubmitDelay     time.Duration `yaml:"submit_delay"`
		SuccessTTL      time.Duration `yaml:"success_ttl"`
		ModalCloseDelay time.Duration `yaml:"modal_close_delay"`
	} `yaml:"timing"`
	Forms    map[string]Form    `yaml:"forms"`
	Modals   []string           `yaml:"modals"`
	Services map[string]Service `yaml:"services"`
	Webhooks []Webhook          `yaml:"webhooks"`
}

type Form struct {
	Placement   string  `yaml:"placement"`
	Modal       string  `yaml:"modal"`
	SubmitLabel string  `yaml:"submit_label"`
	Consent     bool    `yaml:"consent"`
	Fields      []Field `yaml:"fields"`
}

type Field struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Required bool   `yaml:"required"`
	Label    string `yaml:"label"`
}

type Service struct {
	Title    string           `yaml:"title"`
	Summary  string           `yaml:"summary"`
	Sections []ServiceSection `yaml:"sections"`
	CTA      string           `yaml:"cta"`
}

type ServiceSection struct {
	Heading string   `yaml:"heading" json:"heading"`
	Items   []string `yaml:"items" json:"items"`
}

type Webhook struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with sf init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Site.ID == "" {
		return fmt.Errorf("config.site.id is required")
	}
	if c.Site.Locale != "" {
		if _, err := language.Parse(c.Site.Locale); err != nil {
			return fmt.Errorf("config.site.locale %q is invalid: %w", c.Site.Locale, err)
		}
	}
	if _, err := forms.NewRules(c.Site.PhonePattern); err != nil {
		return fmt.Errorf("config.site.phone_pattern: %w", err)
	}
	if c.Timing.SubmitDelay < 0 || c.Timing.SuccessTTL < 0 || c.Timing.ModalCloseDelay < 0 {
		return fmt.Errorf("config.timing values must not be negative")
	}
	if len(c.Forms) == 0 {
		return fmt.Errorf("config.forms must declare at least one form")
	}
	modals := make(map[string]struct{}, len(c.Modals))
	for _, name := range c.Modals {
		if name == "" {
			return fmt.Errorf("config.modals contains an empty name")
		}
		modals[name] = struct{}{}
	}
	for _, def := range c.FormDefinitions() {
		if err := def.Validate(); err != nil {
			return err
		}
		if modal := def.ModalName(); modal != "" {
			if _, ok := modals[modal]; !ok {
				return fmt.Errorf("form %s closes unknown modal %s", def.Name, modal)
			}
		}
	}
	for slug, svc := range c.Services {
		if slug == "" {
			return fmt.Errorf("config.services contains an empty slug")
		}
		if svc.Title == "" {
			return fmt.Errorf("service %s has no title", slug)
		}
		if svc.CTA != "" {
			if _, ok := modals[svc.CTA]; !ok {
				return fmt.Errorf("service %s calls to unknown modal %s", slug, svc.CTA)
			}
		}
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// FormDefinitions converts the forms section, sorted by name.
func (c *Config) FormDefinitions() []forms.Definition {
	names := make([]string, 0, len(c.Forms))
	for name := range c.Forms {
		names = append(names, name)
	}
	sort.Strings(names)
	defs := make([]forms.Definition, 0, len(names))
	for _, name := range names {
		defs = append(defs, c.FormDefinition(name))
	}
	return defs
}

// FormDefinition converts one form entry. Unknown names yield a definition
// with no placement, which fails Validate.
func (c *Config) FormDefinition(name string) forms.Definition {
	f := c.Forms[name]
	def := forms.Definition{
		Name:        name,
		Placement:   forms.Placement(f.Placement),
		Modal:       f.Modal,
		SubmitLabel: f.SubmitLabel,
		Consent:     f.Consent,
		Fields:      make([]forms.Field, 0, len(f.Fields)),
	}
	for _, field := range f.Fields {
		def.Fields = append(def.Fields, forms.Field{
			Name:     field.Name,
			Type:     forms.FieldType(field.Type),
			Required: field.Required,
			Label:    field.Label,
		})
	}
	return def
}

// Rules compiles the validation rules for the site.
func (c *Config) Rules() (forms.Rules, error) {
	return forms.NewRules(c.Site.PhonePattern)
}

// Language resolves the site locale to a supported message language.
func (c *Config) Language() language.Tag {
	return i18n.Match(c.Site.Locale)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "siteforms.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(siteID string) string {
	return fmt.Sprintf(defaultTemplate, siteID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a site.
func Default(siteID string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(siteID))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `site:
  id: %s
  locale: tr
  phone_pattern: '^(\+90|0)?5[0-9]{9}$'

timing:
  # submit_delay only applies to "sf serve --simulate"; stored submissions go
  # straight to the database.
  submit_delay: 1.5s
  success_ttl: 5s
  modal_close_delay: 2s

modals: [quote, demo, service]

forms:
  contact:
    placement: inline
    submit_label: "Mesaj Gönder"
    consent: true
    fields:
      - {name: name, type: text, required: true, label: "Ad Soyad"}
      - {name: email, type: email, required: true, label: "E-posta"}
      - {name: phone, type: tel, label: "Telefon"}
      - {name: subject, type: select, label: "Konu"}
      - {name: message, type: textarea, required: true, label: "Mesajınız"}

  quote:
    placement: modal
    submit_label: "Teklif İste"
    consent: true
    fields:
      - {name: name, type: text, required: true, label: "Ad Soyad"}
      - {name: email, type: email, required: true, label: "E-posta"}
      - {name: phone, type: tel, required: true, label: "Telefon"}
      - {name: company, type: text, label: "Firma"}
      - {name: service, type: select, required: true, label: "Hizmet"}
      - {name: details, type: textarea, label: "Proje Detayları"}

  demo:
    placement: modal
    submit_label: "Demo Talep Et"
    consent: true
    fields:
      - {name: name, type: text, required: true, label: "Ad Soyad"}
      - {name: email, type: email, label: "E-posta"}
      - {name: phone, type: tel, required: true, label: "Telefon"}
      - {name: company, type: text, label: "Firma"}

services:
  erp:
    title: "ERP Çözümleri"
    summary: "Modern ERP sistemimiz ile tüm iş süreçlerinizi tek platformda yönetin."
    cta: demo
    sections:
      - heading: "Temel Modüller"
        items: ["Stok Yönetimi", "Üretim Planlama", "Finans", "İnsan Kaynakları", "CRM"]
      - heading: "Özellikler"
        items: ["Bulut tabanlı veya kurumsal sunucu seçenekleri", "Mobil uygulama desteği", "Özelleştirilebilir raporlama", "API entegrasyonları", "7/24 teknik destek"]
  web:
    title: "Web Yazılım Geliştirme"
    summary: "İhtiyaçlarınıza özel, ölçeklenebilir ve güvenli web uygulamaları geliştiriyoruz."
    cta: quote
    sections:
      - heading: "Hizmetlerimiz"
        items: ["E-ticaret platformları", "Kurumsal web uygulamaları", "API geliştirme ve entegrasyon", "Mobil uyumlu responsive tasarım"]
      - heading: "Süreç"
        items: ["İhtiyaç analizi ve proje planlama", "UI/UX tasarım", "Geliştirme ve test", "Canlıya alma ve eğitim", "Sürekli destek ve bakım"]
  seo:
    title: "Google SEO Hizmetleri"
    summary: "Google'da üst sıralarda yer alarak organik trafiğinizi artırın."
    cta: quote
    sections:
      - heading: "SEO Hizmetlerimiz"
        items: ["Teknik SEO", "İçerik SEO", "Link Building", "Yerel SEO"]
  maps:
    title: "Google Haritalar Optimizasyonu"
    summary: "Google haritalarda üst sıralarda yer alarak yerel müşterilerinize ulaşın."
    cta: quote
    sections:
      - heading: "Hizmetlerimiz"
        items: ["Google Business Profile", "Kategori Optimizasyonu", "Fotoğraf Yönetimi", "Yorum Yönetimi", "Yerel Citation"]
  ranking:
    title: "Google Arama Sıralaması"
    summary: "Hedef anahtar kelimelerinizde Google'da ilk sayfada yer alın."
    cta: quote
    sections:
      - heading: "Strateji Yaklaşımımız"
        items: ["Rekabet Analizi", "Anahtar Kelime Stratejisi", "İçerik Kalitesi", "Teknik Mükemmellik", "Authority Building"]

webhooks: []
`
