package httpserver

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/text/language"
)

const (
	LANGUAGE_COOKIE  = "skylog_language"
	DEFAULT_LANGUAGE = "es"
)

// first entry is the fallback
var supportedLanguages = []language.Tag{language.Spanish, language.English}

var languageMatcher = language.NewMatcher(supportedLanguages)

func isSupportedLanguage(lang string) bool {
	for _, tag := range supportedLanguages {
		if tag.String() == lang {
			return true
		}
	}
	return false
}

// requestLanguage picks the page language from the language cookie, then
// Accept-Language.
func requestLanguage(c *gin.Context) string {
	cookie, _ := c.Cookie(LANGUAGE_COOKIE)
	if isSupportedLanguage(cookie) {
		return cookie
	}

	_, idx := language.MatchStrings(languageMatcher, c.GetHeader("Accept-Language"))
	return supportedLanguages[idx].String()
}

// Only the page chrome is translated. Spanish is the source text.
var translations = map[string]map[string]string{
	"en": {
		"Inicio":                     "Home",
		"Mapa":                       "Map",
		"Mapa 3D":                    "3D map",
		"Vuelos":                     "Flights",
		"Fotos":                      "Photos",
		"Zonas":                      "Zones",
		"Subir foto":                 "Upload photo",
		"Nuevo vuelo":                "New flight",
		"Últimos vuelos":             "Latest flights",
		"Últimas fotos":              "Latest photos",
		"Nombre":                     "Name",
		"Modelo de dron":             "Drone model",
		"Fecha":                      "Date",
		"Distancia":                  "Distance",
		"Ruta":                       "Path",
		"Fichero GeoJSON":            "GeoJSON file",
		"Vuelo":                      "Flight",
		"Sin vuelo":                  "No flight",
		"Imagen":                     "Image",
		"Latitud":                    "Latitude",
		"Longitud":                   "Longitude",
		"Tomada el":                  "Taken at",
		"Notas":                      "Notes",
		"Guardar":                    "Save",
		"Cancelar":                   "Cancel",
		"Editar":                     "Edit",
		"Borrar":                     "Delete",
		"Editar ruta":                "Edit path",
		"Exportar":                   "Export",
		"Deshacer":                   "Undo",
		"Limpiar":                    "Clear",
		"Guardar ruta":               "Save path",
		"¿Seguro que quieres borrar": "Are you sure you want to delete",
		"No hay vuelos todavía.":     "No flights yet.",
		"No hay fotos todavía.":      "No photos yet.",
		"No encontrado.":             "Not found.",
		"Idioma":                     "Language",
		"Haz clic en el mapa para añadir puntos a la ruta.": "Click on the map to add points to the path.",
		"Si la imagen tiene GPS en EXIF no hace falta indicar lat/lon.": "If the image has EXIF GPS data, lat/lon can be left empty.",
		"Pega el GeoJSON de la ruta o sube un fichero.":                 "Paste the path GeoJSON or upload a file.",
	},
}

// translate returns 'key' in 'lang', falling back to the Spanish source.
func translate(lang, key string) string {
	if msg, ok := translations[lang][key]; ok {
		return msg
	}
	return key
}
